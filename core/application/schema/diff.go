package schema

import (
	"maps"
	"slices"
	"strings"

	"github.com/hyperterse/fanout/core/domain"
)

// TableDiff describes one table name across the compared connections.
type TableDiff struct {
	Name      string       `json:"name"`
	PresentIn []string     `json:"present_in"`
	MissingIn []string     `json:"missing_in"`
	Columns   []ColumnDiff `json:"columns"`
}

// ColumnDiff describes one column of a table across the connections that
// have the table. Types maps connection name to declared type.
type ColumnDiff struct {
	Name         string            `json:"name"`
	Types        map[string]string `json:"types"`
	PresentIn    []string          `json:"present_in"`
	MissingIn    []string          `json:"missing_in"`
	TypeMismatch bool              `json:"type_mismatch"`
}

// Consistent reports whether the table exists everywhere with identical
// columns and types.
func (t TableDiff) Consistent() bool {
	if len(t.MissingIn) > 0 {
		return false
	}
	for _, col := range t.Columns {
		if len(col.MissingIn) > 0 || col.TypeMismatch {
			return false
		}
	}
	return true
}

// Diff compares described schemas. order lists the connections to compare;
// schemas holds their table lists. Tables and columns are sorted by name and
// connection lists follow order.
func Diff(order []string, schemas map[string]domain.TableList) []TableDiff {
	tableNames := map[string]struct{}{}
	for _, conn := range order {
		for _, t := range schemas[conn] {
			tableNames[t.Name] = struct{}{}
		}
	}

	diffs := make([]TableDiff, 0, len(tableNames))
	for _, name := range slices.Sorted(maps.Keys(tableNames)) {
		td := TableDiff{Name: name, PresentIn: []string{}, MissingIn: []string{}, Columns: []ColumnDiff{}}
		types := map[string]map[string]string{}

		for _, conn := range order {
			table, ok := schemas[conn].Lookup(name)
			if !ok {
				td.MissingIn = append(td.MissingIn, conn)
				continue
			}
			td.PresentIn = append(td.PresentIn, conn)
			for _, col := range table.Columns {
				if types[col.Name] == nil {
					types[col.Name] = map[string]string{}
				}
				types[col.Name][conn] = col.Type
			}
		}

		for _, colName := range slices.Sorted(maps.Keys(types)) {
			td.Columns = append(td.Columns, diffColumn(colName, types[colName], td.PresentIn))
		}
		diffs = append(diffs, td)
	}
	return diffs
}

func diffColumn(name string, types map[string]string, tableIn []string) ColumnDiff {
	cd := ColumnDiff{Name: name, Types: types, PresentIn: []string{}, MissingIn: []string{}}
	distinct := map[string]struct{}{}
	for _, conn := range tableIn {
		typ, ok := types[conn]
		if !ok {
			cd.MissingIn = append(cd.MissingIn, conn)
			continue
		}
		cd.PresentIn = append(cd.PresentIn, conn)
		distinct[strings.ToLower(strings.TrimSpace(typ))] = struct{}{}
	}
	cd.TypeMismatch = len(cd.MissingIn) == 0 && len(distinct) > 1
	return cd
}
