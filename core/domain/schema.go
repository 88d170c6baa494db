package domain

// Column describes one column of a described table.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// Table describes one table and its columns in ordinal order.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// TableList is the schema of a single connection as reported by its driver.
type TableList []Table

// Lookup finds a table by name.
func (l TableList) Lookup(name string) (Table, bool) {
	for _, t := range l {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}
