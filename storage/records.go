package storage

import (
	"database/sql"
	"fmt"
)

// scanRecords scans every remaining row into a generic record. Byte
// slices are copied into strings so records stay valid after the rows
// are closed.
func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		record := make(Record, len(columns))
		for i, column := range columns {
			record[column] = normalizeValue(values[i])
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// scanRecord scans exactly one row, returning sql.ErrNoRows when the
// result set is empty.
func scanRecord(rows *sql.Rows) (Record, error) {
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, sql.ErrNoRows
	}
	return records[0], nil
}

func normalizeValue(value any) any {
	if b, ok := value.([]byte); ok {
		return string(b)
	}
	return value
}

// pkString renders a primary key value the way it appears in resource
// identifiers.
func pkString(value any) string {
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}
