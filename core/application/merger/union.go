package merger

import (
	"github.com/hyperterse/fanout/core/domain"
)

// Union stacks the rows of every successful outcome under the superset of
// their columns, in first-seen order, behind a leading _source_db column.
// Missing columns are null. Union never fails.
func Union(outcomes []*domain.QueryOutcome) *domain.MergedResult {
	result, succeeded := newResult(domain.MergeUnion, outcomes)

	result.Columns = append(result.Columns, domain.SourceTagColumn)
	position := map[string]int{domain.SourceTagColumn: 0}
	for _, outcome := range succeeded {
		for _, col := range outcome.Columns {
			if _, ok := position[col]; ok {
				continue
			}
			position[col] = len(result.Columns)
			result.Columns = append(result.Columns, col)
		}
	}

	for _, outcome := range succeeded {
		for _, src := range outcome.Rows {
			row := make([]any, len(result.Columns))
			row[0] = outcome.Connection
			for j, col := range outcome.Columns {
				// The tag column is authoritative over a source column of the same name.
				if col == domain.SourceTagColumn || j >= len(src) {
					continue
				}
				row[position[col]] = src[j]
			}
			result.Rows = append(result.Rows, row)
		}
	}

	return result
}
