package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// MalformedInputError indicates the uploaded bytes are not a well-formed
// CSV file. Line is 1-based and 0 when the problem is not tied to a line.
type MalformedInputError struct {
	Line   int
	Reason string
}

func (e *MalformedInputError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed csv at line %d: %s", e.Line, e.Reason)
	}
	return "malformed csv: " + e.Reason
}

// Dataset is the result of parsing one upload: the inferred schema and the
// typed rows in file order. Rows is empty (not nil) for a header-only file.
type Dataset struct {
	Columns []Column
	Rows    [][]Value
}

// RowCount returns the number of data rows in the dataset.
func (d *Dataset) RowCount() int {
	return len(d.Rows)
}

// Parse converts raw upload bytes into a Dataset.
//
// Input must be valid UTF-8; a leading BOM is stripped. The first line must
// be a header with unique, non-empty column names. Every data row must have
// exactly as many fields as the header; rows that are entirely empty are
// skipped. Column types are inferred from the values actually seen: a
// column holding only integers becomes TypeInteger, one with any
// non-integer number becomes TypeFloat, and anything else becomes TypeText.
// A column with no values at all is marked AllNull and defaults to text.
func Parse(data []byte) (*Dataset, error) {
	data = skipBOM(data)
	if !utf8.Valid(data) {
		return nil, &MalformedInputError{Reason: "invalid utf-8 encoding"}
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, &MalformedInputError{Reason: "empty file"}
	}

	r := csv.NewReader(strings.NewReader(string(data)))
	r.FieldsPerRecord = -1 // field counts checked below for better errors
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, &MalformedInputError{Line: 1, Reason: err.Error()}
	}

	columns, err := parseHeader(header)
	if err != nil {
		return nil, err
	}

	types := make([]ColumnType, len(columns))
	sawValue := make([]bool, len(columns))

	rows := make([][]Value, 0)
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, &MalformedInputError{Line: perr.Line, Reason: perr.Err.Error()}
			}
			return nil, &MalformedInputError{Reason: err.Error()}
		}
		if isEmptyRow(record) {
			continue
		}
		if len(record) != len(columns) {
			// Quoted fields may span lines, so report the record's actual
			// starting line in the input rather than a record count.
			line, _ := r.FieldPos(0)
			return nil, &MalformedInputError{
				Line:   line,
				Reason: fmt.Sprintf("expected %d fields, got %d", len(columns), len(record)),
			}
		}

		row := make([]Value, len(record))
		for i, cell := range record {
			v := Infer(cell)
			row[i] = v
			if v.Kind != KindNull {
				types[i] = widen(types[i], columnTypeOf(v.Kind))
				sawValue[i] = true
			}
		}
		rows = append(rows, row)
	}

	for i := range columns {
		if !sawValue[i] {
			// No type evidence; text is only a default for table creation.
			columns[i].Type = TypeText
			columns[i].AllNull = true
			continue
		}
		columns[i].Type = types[i]
	}

	return &Dataset{Columns: columns, Rows: rows}, nil
}

// parseHeader validates the header row and returns the column list with
// placeholder types. Names are trimmed; duplicates are detected
// case-insensitively since they become database identifiers.
func parseHeader(header []string) ([]Column, error) {
	if len(header) == 0 {
		return nil, &MalformedInputError{Line: 1, Reason: "empty header"}
	}

	columns := make([]Column, len(header))
	seen := make(map[string]bool, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, &MalformedInputError{Line: 1, Reason: fmt.Sprintf("empty column name at position %d", i+1)}
		}
		key := strings.ToLower(name)
		if seen[key] {
			return nil, &MalformedInputError{Line: 1, Reason: fmt.Sprintf("duplicate column name %q", name)}
		}
		seen[key] = true
		columns[i] = Column{Name: name}
	}
	return columns, nil
}
