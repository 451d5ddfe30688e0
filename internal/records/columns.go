package records

import (
	"fmt"
	"strings"
)

// findHeader returns the index of the first header containing keyword,
// compared case-insensitively, or -1.
func findHeader(headers []string, keyword string) int {
	if keyword == "" {
		return -1
	}
	kw := strings.ToLower(keyword)
	for i, h := range headers {
		if strings.Contains(strings.ToLower(h), kw) {
			return i
		}
	}
	return -1
}

// columnLetter converts a zero-based column index into A1 notation (0 -> A, 26 -> AA).
func columnLetter(idx int) string {
	if idx < 0 {
		return ""
	}
	var b []byte
	for n := idx + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

// quoteSheet wraps a sheet name for use in an A1 range.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// cellRange builds a single-cell A1 range such as 'Sample '!H5.
func cellRange(sheet, column string, row int) string {
	return fmt.Sprintf("%s!%s%d", quoteSheet(sheet), column, row)
}

// columnLayout is the resolved column letter for each sink role.
type columnLayout struct {
	Status string
	Email  string
	Error  string
}
