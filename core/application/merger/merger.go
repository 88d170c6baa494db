// Package merger combines per-connection outcomes into one table, either by
// stacking rows (union) or by a full outer join on a key column.
package merger

import (
	"fmt"

	"github.com/hyperterse/fanout/core/domain"
	"github.com/hyperterse/fanout/core/shared/errors"
)

// Merge runs the strategy named by mergeType. MergeNone is not a merge and
// is rejected.
func Merge(mergeType domain.MergeType, outcomes []*domain.QueryOutcome, key string) (*domain.MergedResult, error) {
	switch mergeType {
	case domain.MergeUnion:
		return Union(outcomes), nil
	case domain.MergeJoin:
		return Join(outcomes, key)
	default:
		return nil, errors.NewAppError(errors.ErrCodeInvalidInput,
			fmt.Sprintf("unsupported merge type '%s'", mergeType), nil)
	}
}

// newResult fills the source bookkeeping shared by both strategies: every
// requested connection appears in SourceDatabases, failed ones also in
// Errors with zero contributed rows.
func newResult(mergeType domain.MergeType, outcomes []*domain.QueryOutcome) (*domain.MergedResult, []*domain.QueryOutcome) {
	result := &domain.MergedResult{
		MergeType:       mergeType,
		Columns:         []string{},
		Rows:            [][]any{},
		SourceDatabases: make([]string, 0, len(outcomes)),
		RowsPerSource:   make(map[string]int, len(outcomes)),
		Errors:          []domain.SourceError{},
	}

	succeeded := make([]*domain.QueryOutcome, 0, len(outcomes))
	for _, outcome := range outcomes {
		if outcome == nil {
			continue
		}
		result.SourceDatabases = append(result.SourceDatabases, outcome.Connection)
		if outcome.Succeeded {
			result.RowsPerSource[outcome.Connection] = len(outcome.Rows)
			succeeded = append(succeeded, outcome)
			continue
		}

		result.RowsPerSource[outcome.Connection] = 0
		srcErr := domain.SourceError{Connection: outcome.Connection, Kind: errors.ErrCodeInternalError}
		if outcome.Error != nil {
			srcErr.Kind = outcome.Error.Kind
			srcErr.Message = outcome.Error.Message
		}
		result.Errors = append(result.Errors, srcErr)
	}
	return result, succeeded
}
