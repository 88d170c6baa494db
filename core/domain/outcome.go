package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/hyperterse/fanout/core/shared/errors"
)

// SourceTagColumn is the reserved column union merges prepend to every row.
const SourceTagColumn = "_source_db"

// RawColumn describes one column of a driver result before normalization.
type RawColumn struct {
	Name         string
	DatabaseType string
}

// RawResult is what a driver hands back for one executed query. Values are
// whatever the underlying driver produced.
type RawResult struct {
	Columns []RawColumn
	Rows    [][]any
}

// OutcomeError is the structured error attached to a failed outcome.
type OutcomeError struct {
	Kind    errors.ErrorCode `json:"kind"`
	Message string           `json:"message"`
}

func (e *OutcomeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// QueryOutcome is the result of one dispatched query on one connection.
type QueryOutcome struct {
	Connection string
	Succeeded  bool
	Columns    []string
	Rows       [][]any
	RowCount   int
	Truncated  bool
	Duration   time.Duration
	Error      *OutcomeError
}

// FailedOutcome builds an unsuccessful outcome.
func FailedOutcome(connection string, kind errors.ErrorCode, message string) *QueryOutcome {
	return &QueryOutcome{
		Connection: connection,
		Error:      &OutcomeError{Kind: kind, Message: message},
	}
}

// ColumnIndex returns the position of name in the outcome's columns, or -1.
func (o *QueryOutcome) ColumnIndex(name string) int {
	for i, col := range o.Columns {
		if col == name {
			return i
		}
	}
	return -1
}

// RowObjects converts rows into column name -> value maps.
func (o *QueryOutcome) RowObjects() []map[string]any {
	return rowObjects(o.Columns, o.Rows)
}

// DispatchResult maps connection names to their outcomes and remembers the
// order in which targets were requested.
type DispatchResult struct {
	ID       string
	Query    string
	Targets  []string
	Outcomes map[string]*QueryOutcome
}

// Ordered returns outcomes in target order.
func (r *DispatchResult) Ordered() []*QueryOutcome {
	out := make([]*QueryOutcome, 0, len(r.Targets))
	for _, name := range r.Targets {
		if outcome, ok := r.Outcomes[name]; ok {
			out = append(out, outcome)
		}
	}
	return out
}

// Succeeded counts successful outcomes.
func (r *DispatchResult) Succeeded() int {
	n := 0
	for _, outcome := range r.Outcomes {
		if outcome.Succeeded {
			n++
		}
	}
	return n
}

// MergeType selects how outcomes are combined.
type MergeType string

const (
	MergeNone  MergeType = "none"
	MergeUnion MergeType = "union"
	MergeJoin  MergeType = "join"
)

// ParseMergeType converts user input to a MergeType. Empty means none.
func ParseMergeType(s string) (MergeType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return MergeNone, nil
	case "union":
		return MergeUnion, nil
	case "join":
		return MergeJoin, nil
	default:
		return "", fmt.Errorf("unsupported merge type '%s' (expected none, union or join)", s)
	}
}

// SourceError reports a connection that contributed no rows to a merge.
type SourceError struct {
	Connection string           `json:"connection"`
	Kind       errors.ErrorCode `json:"kind"`
	Message    string           `json:"message"`
}

// MergedResult is the combined table produced by the merger.
type MergedResult struct {
	MergeType       MergeType
	KeyColumn       string
	Columns         []string
	Rows            [][]any
	SourceDatabases []string
	RowsPerSource   map[string]int
	Errors          []SourceError
}

// RowCount returns the number of merged rows.
func (m *MergedResult) RowCount() int {
	return len(m.Rows)
}

// RowObjects converts merged rows into column name -> value maps.
func (m *MergedResult) RowObjects() []map[string]any {
	return rowObjects(m.Columns, m.Rows)
}

func rowObjects(columns []string, rows [][]any) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		obj := make(map[string]any, len(columns))
		for j, col := range columns {
			if j < len(row) {
				obj[col] = row[j]
			} else {
				obj[col] = nil
			}
		}
		out[i] = obj
	}
	return out
}
