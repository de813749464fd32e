/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package knowledge

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// rowsToJSON drains rows into a JSON array of column-name-keyed objects,
// truncating at maxRows rather than buffering an unbounded result set.
func rowsToJSON(rows *sql.Rows, maxRows int) ([]byte, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	out := make([]map[string]interface{}, 0, 16)
	for rows.Next() {
		if len(out) >= maxRows {
			break
		}
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]interface{}, len(cols))
		for i, c := range cols {
			row[c] = normalizeSQLValue(vals[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal rows: %w", err)
	}
	return raw, nil
}

// normalizeSQLValue turns driver byte-slice results (common for numeric and
// text types under some drivers) into strings so they marshal as JSON text
// rather than base64-encoded blobs.
func normalizeSQLValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
