package merger

import (
	"fmt"
	"math"

	"github.com/hyperterse/fanout/core/application/normalizer"
	"github.com/hyperterse/fanout/core/domain"
	"github.com/hyperterse/fanout/core/shared/errors"
)

// nullKey stands in for a null key value; nulls join with each other.
type nullKey struct{}

// nanKey stands in for a NaN key, which never equals itself as a map key.
type nanKey struct{}

// Join performs a full outer join of the successful outcomes on key. The
// result has one row per distinct key value, in first-seen order, with the
// key column once followed by each connection's other columns renamed to
// {column}_{connection}. When a connection returns the same key more than
// once its last row wins.
func Join(outcomes []*domain.QueryOutcome, key string) (*domain.MergedResult, error) {
	if key == "" {
		return nil, errors.NewAppError(errors.ErrCodeInvalidInput, "join requires a key column", nil)
	}

	result, succeeded := newResult(domain.MergeJoin, outcomes)
	result.KeyColumn = key

	keyIndex := make([]int, len(succeeded))
	for i, outcome := range succeeded {
		keyIndex[i] = outcome.ColumnIndex(key)
		if keyIndex[i] < 0 {
			return nil, errors.ForConnection(errors.ErrCodeMissingKeyColumn, outcome.Connection,
				fmt.Sprintf("key column '%s' is missing from the result of '%s'", key, outcome.Connection), nil)
		}
	}

	if err := checkKeyKinds(succeeded, keyIndex); err != nil {
		return nil, err
	}

	// Key universe in first-seen order, and each connection's row per key.
	order := []any{}
	display := map[any]any{}
	perConn := make([]map[any][]any, len(succeeded))
	columns := []string{key}
	colIndex := make([][]int, len(succeeded))
	for i, outcome := range succeeded {
		perConn[i] = make(map[any][]any, len(outcome.Rows))
		for _, row := range outcome.Rows {
			var v any
			if keyIndex[i] < len(row) {
				v = row[keyIndex[i]]
			}
			id := keyID(v)
			if _, seen := display[id]; !seen {
				display[id] = v
				order = append(order, id)
			}
			perConn[i][id] = row
		}

		for j, col := range outcome.Columns {
			if j == keyIndex[i] {
				continue
			}
			colIndex[i] = append(colIndex[i], j)
			columns = append(columns, fmt.Sprintf("%s_%s", col, outcome.Connection))
		}
	}

	result.Columns = normalizer.UniqueColumns(columns)
	for _, id := range order {
		row := make([]any, 0, len(result.Columns))
		row = append(row, display[id])
		for i := range succeeded {
			src, ok := perConn[i][id]
			for _, j := range colIndex[i] {
				if ok && j < len(src) {
					row = append(row, src[j])
				} else {
					row = append(row, nil)
				}
			}
		}
		result.Rows = append(result.Rows, row)
	}

	return result, nil
}

// keyID maps a key value onto a comparable identity. Integral floats share
// the identity of the equal integer and NaN keys join with each other.
func keyID(v any) any {
	switch val := v.(type) {
	case nil:
		return nullKey{}
	case float64:
		if math.IsNaN(val) {
			return nanKey{}
		}
		if val == math.Trunc(val) && val >= math.MinInt64 && val < math.MaxInt64 {
			return int64(val)
		}
		return val
	default:
		return val
	}
}

type keyFamily string

const (
	familyNumeric keyFamily = "numeric"
	familyText    keyFamily = "text"
	familyBoolean keyFamily = "boolean"
)

func familyOf(v any) (keyFamily, bool) {
	switch normalizer.KindOf(v) {
	case normalizer.KindInteger, normalizer.KindFloat:
		return familyNumeric, true
	case normalizer.KindText:
		return familyText, true
	case normalizer.KindBoolean:
		return familyBoolean, true
	default:
		return "", false
	}
}

// checkKeyKinds rejects key columns whose non-null values span more than one
// kind family across all successful outcomes.
func checkKeyKinds(succeeded []*domain.QueryOutcome, keyIndex []int) error {
	var (
		first     keyFamily
		firstConn string
	)
	for i, outcome := range succeeded {
		for _, row := range outcome.Rows {
			if keyIndex[i] >= len(row) {
				continue
			}
			family, ok := familyOf(row[keyIndex[i]])
			if !ok {
				continue
			}
			if first == "" {
				first, firstConn = family, outcome.Connection
				continue
			}
			if family != first {
				return errors.ForConnection(errors.ErrCodeIncompatibleKeyTypes, outcome.Connection,
					fmt.Sprintf("key values from '%s' are %s but '%s' returned %s keys",
						outcome.Connection, family, firstConn, first), nil)
			}
		}
	}
	return nil
}
