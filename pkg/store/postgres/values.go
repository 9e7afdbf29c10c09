package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/Sternrassler/data-flux/pkg/collection"
	"github.com/Sternrassler/data-flux/pkg/schema"
	"github.com/Sternrassler/data-flux/pkg/store"
)

var errNullValue = errors.New("null value")

// timestampLayouts are accepted for source timestamps; values without a zone
// are taken as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	time.DateOnly,
}

// buildRows converts mapped records into COPY rows in t's column order. A
// record with a value its column cannot hold, or a null in a NOT NULL column,
// is left out and reported as skipped; its siblings are still converted.
func buildRows(t table, records []schema.MappedRecord) ([][]any, []store.SkippedRecord, error) {
	rows := make([][]any, 0, len(records))
	var skipped []store.SkippedRecord
	for i, rec := range records {
		values := rec.Values()
		if rec.Collection == collection.ListenHistory {
			values = append(values, rec.Position)
		}
		if len(values) != len(t.columns) {
			return nil, nil, fmt.Errorf("record %d: %d values for %d %s columns", i, len(values), len(t.columns), t.name)
		}

		row, col, err := convertRow(t, values)
		if err != nil {
			skipped = append(skipped, store.SkippedRecord{
				Page:   rec.Page,
				Index:  rec.Index,
				Column: t.name + "." + col,
				Err:    err,
			})
			continue
		}
		rows = append(rows, row)
	}
	return rows, skipped, nil
}

// convertRow converts one record's values, returning the first failing column.
func convertRow(t table, values []any) ([]any, string, error) {
	row := make([]any, len(values))
	for k, v := range values {
		col := t.columns[k]
		converted, err := convert(t.typeOf(col), v)
		if err != nil {
			return nil, col, err
		}
		if converted == nil && t.notNull[col] {
			return nil, col, errNullValue
		}
		row[k] = converted
	}
	return row, "", nil
}

// convert turns a decoded JSON value into the Go value pgx encodes for the
// column type.
func convert(ct columnType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch ct {
	case typeBigint:
		return toInt64(v)
	case typeInteger:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		if n > math.MaxInt32 || n < math.MinInt32 {
			return nil, fmt.Errorf("%d overflows integer", n)
		}
		return int32(n), nil
	case typeTimestamp:
		return toTime(v)
	default:
		return toText(v)
	}
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("not an integer: %s", n)
		}
		return i, nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}
		return int64(n), nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("not an integer: %q", n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("not an integer: %T", v)
	}
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("invalid timestamp %q", t)
	default:
		return time.Time{}, fmt.Errorf("invalid timestamp: %T", v)
	}
}

func toText(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case json.Number:
		return s.String(), nil
	case bool:
		return strconv.FormatBool(s), nil
	case fmt.Stringer:
		return s.String(), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}
