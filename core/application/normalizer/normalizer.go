// Package normalizer converts raw driver results into the canonical tabular
// shape used by the merger: unique column names and rows whose values are
// one of nil, int64, float64, string or bool. Timestamps become RFC 3339
// text, and non-finite floats become "NaN", "Infinity" or "-Infinity".
package normalizer

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hyperterse/fanout/core/domain"
)

// ValueKind is the closed set of canonical value kinds.
type ValueKind string

const (
	KindNull    ValueKind = "null"
	KindInteger ValueKind = "integer"
	KindFloat   ValueKind = "float"
	KindText    ValueKind = "text"
	KindBoolean ValueKind = "boolean"
	KindUnknown ValueKind = "unknown"
)

// KindOf reports the kind of a canonical value.
func KindOf(v any) ValueKind {
	switch v.(type) {
	case nil:
		return KindNull
	case int64:
		return KindInteger
	case float64:
		return KindFloat
	case string:
		return KindText
	case bool:
		return KindBoolean
	default:
		return KindUnknown
	}
}

// Normalize returns unique column names and canonical rows for raw.
func Normalize(raw *domain.RawResult) ([]string, [][]any) {
	if raw == nil {
		return []string{}, [][]any{}
	}

	names := make([]string, len(raw.Columns))
	types := make([]string, len(raw.Columns))
	for i, col := range raw.Columns {
		names[i] = col.Name
		types[i] = col.DatabaseType
	}

	rows := make([][]any, len(raw.Rows))
	for i, rawRow := range raw.Rows {
		row := make([]any, len(names))
		for j := range names {
			if j < len(rawRow) {
				row[j] = Value(rawRow[j], types[j])
			}
		}
		rows[i] = row
	}

	return UniqueColumns(names), rows
}

// UniqueColumns disambiguates repeated names by appending _2, _3, ... to the
// second and later occurrences. Original names are kept verbatim and are
// never reused as a generated suffix.
func UniqueColumns(names []string) []string {
	taken := make(map[string]bool, len(names))
	for _, name := range names {
		taken[name] = true
	}

	used := make(map[string]bool, len(names))
	out := make([]string, len(names))
	for i, name := range names {
		if !used[name] {
			used[name] = true
			out[i] = name
			continue
		}
		for n := 2; ; n++ {
			candidate := fmt.Sprintf("%s_%d", name, n)
			if !taken[candidate] && !used[candidate] {
				used[candidate] = true
				out[i] = candidate
				break
			}
		}
	}
	return out
}

// Value canonicalizes a single driver value. dbType is the column's
// database type name and is used to decode textual numerics.
func Value(v any, dbType string) any {
	switch val := v.(type) {
	case nil:
		return nil
	case bool:
		return val
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case int64:
		return val
	case uint:
		return fromUint64(uint64(val))
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return fromUint64(val)
	case float32:
		f, _ := strconv.ParseFloat(strconv.FormatFloat(float64(val), 'g', -1, 32), 64)
		return finite(f)
	case float64:
		return finite(val)
	case string:
		return decodeText(val, dbType)
	case []byte:
		if typeFamily(dbType) == familyBit {
			return bitsToInt(val)
		}
		return decodeText(string(val), dbType)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.Format(time.RFC3339Nano)
	case [16]byte:
		return uuid.UUID(val).String()
	case uuid.UUID:
		return val.String()
	case json.Number:
		return decodeText(val.String(), "NUMERIC")
	case *big.Int:
		if val == nil {
			return nil
		}
		if val.IsInt64() {
			return val.Int64()
		}
		f, _ := new(big.Float).SetInt(val).Float64()
		return finite(f)
	case driver.Valuer:
		inner, err := val.Value()
		if err != nil {
			return fmt.Sprint(v)
		}
		if _, again := inner.(driver.Valuer); again {
			return fmt.Sprint(inner)
		}
		return Value(inner, dbType)
	case map[string]any, []any:
		return jsonText(val)
	case fmt.Stringer:
		return val.String()
	default:
		return jsonText(val)
	}
}

// finite keeps JSON-encodable floats as float64 and spells out the rest.
func finite(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return f
}

func fromUint64(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}

func bitsToInt(b []byte) any {
	var n uint64
	for _, octet := range b {
		n = n<<8 | uint64(octet)
	}
	return fromUint64(n)
}

func jsonText(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

type family int

const (
	familyText family = iota
	familyInteger
	familyFloat
	familyBool
	familyBit
)

var typeFamilies = map[string]family{
	"TINYINT":          familyInteger,
	"SMALLINT":         familyInteger,
	"MEDIUMINT":        familyInteger,
	"INT":              familyInteger,
	"INTEGER":          familyInteger,
	"BIGINT":           familyInteger,
	"INT2":             familyInteger,
	"INT4":             familyInteger,
	"INT8":             familyInteger,
	"SERIAL":           familyInteger,
	"SMALLSERIAL":      familyInteger,
	"BIGSERIAL":        familyInteger,
	"YEAR":             familyInteger,
	"FLOAT":            familyFloat,
	"FLOAT4":           familyFloat,
	"FLOAT8":           familyFloat,
	"DOUBLE":           familyFloat,
	"DOUBLE PRECISION": familyFloat,
	"REAL":             familyFloat,
	"DECIMAL":          familyFloat,
	"NUMERIC":          familyFloat,
	"BOOL":             familyBool,
	"BOOLEAN":          familyBool,
	"BIT":              familyBit,
}

// typeFamily classifies a database type name such as "UNSIGNED BIGINT",
// "decimal(10,2)" or "INT4".
func typeFamily(dbType string) family {
	t := strings.ToUpper(strings.TrimSpace(dbType))
	t = strings.TrimPrefix(t, "UNSIGNED ")
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	t = strings.TrimSuffix(t, " UNSIGNED")
	if f, ok := typeFamilies[t]; ok {
		return f
	}
	return familyText
}

func decodeText(s, dbType string) any {
	switch typeFamily(dbType) {
	case familyInteger:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		if u, err := strconv.ParseUint(s, 10, 64); err == nil {
			return fromUint64(u)
		}
	case familyFloat:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return finite(f)
		}
	case familyBool:
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return s
}
