package ingest

// sanitize.go handles common CSV file artifacts before parsing:
//
//   - UTF-8 BOM (0xEF 0xBB 0xBF) written by Excel on Windows
//   - trailing blank rows from spreadsheet exports

import (
	"bytes"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// skipBOM removes a leading UTF-8 byte order mark if present.
func skipBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, utf8BOM)
}

// isEmptyRow reports whether every cell in the row is empty or whitespace.
// Trailing blank lines in exported CSVs produce these.
func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if len(bytes.TrimSpace([]byte(cell))) > 0 {
			return false
		}
	}
	return true
}
