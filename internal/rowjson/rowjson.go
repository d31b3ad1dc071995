// Package rowjson projects SQLite rows into generic JSON values using the
// cell-conversion rules Lantern exposes to clients: NULL -> null, INTEGER
// and REAL -> number, TEXT and BLOB -> string.
package rowjson

import (
	"database/sql"
	"fmt"
	"math"
	"unicode/utf8"
)

// Row is a single result row keyed by column name. Being a Go map, it does
// not keep the statement's column order: encoding/json writes its keys
// sorted by name.
type Row map[string]any

// ScanRows reads every remaining row from rows and returns one Row per
// result row, keyed by the column names rows.Columns reports.
func ScanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	results := make([]Row, 0)
	dest := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range dest {
		ptrs[i] = &dest[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(Row, len(cols))
		for i, name := range cols {
			v, err := convertCell(dest[i])
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", name, err)
			}
			row[name] = v
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return results, nil
}

// convertCell applies Lantern's cell-conversion rules. The modernc.org/sqlite
// driver surfaces NULL as nil, INTEGER as int64, REAL as float64, TEXT as
// string, and BLOB as []byte.
func convertCell(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case int64:
		return val, nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, fmt.Errorf("non-finite REAL value cannot be represented as JSON")
		}
		return val, nil
	case string:
		return val, nil
	case []byte:
		if !utf8.Valid(val) {
			return nil, fmt.Errorf("BLOB value is not valid UTF-8")
		}
		return string(val), nil
	case bool:
		// SQLite has no native boolean affinity; the driver may surface
		// CHECK(... IN (0,1))-style columns as bool depending on
		// declared type. Normalize to the INTEGER rule.
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	default:
		return nil, fmt.Errorf("unsupported SQLite value type %T", v)
	}
}
