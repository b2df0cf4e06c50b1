// Package csvutil carries the small helpers the CSV importers share.
package csvutil

import (
	"fmt"
	"strings"
)

// Columns indexes a CSV header by trimmed column name.
func Columns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	return cols
}

// Require returns an error naming the required columns missing from cols.
func Require(cols map[string]int, required ...string) error {
	var missing []string
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Field returns the trimmed value of a named column, or "" when the column
// is absent or the record is short.
func Field(record []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
