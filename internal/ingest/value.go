// Package ingest converts uploaded CSV bytes into typed rows ready for
// database insertion. Parsing is a pure transformation: no I/O beyond the
// input slice, no database access.
package ingest

import (
	"strconv"
	"strings"
)

// Kind identifies the inferred type of a single CSV field.
type Kind int

const (
	KindNull Kind = iota
	KindInteger
	KindFloat
	KindText
)

// ColumnType is the inferred storage type for a whole column.
// A column is the widest type seen across its values: any text forces
// TypeText, otherwise any float forces TypeFloat, otherwise TypeInteger.
type ColumnType int

const (
	TypeInteger ColumnType = iota
	TypeFloat
	TypeText
)

// String returns the wire name used in API responses.
func (t ColumnType) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	default:
		return "text"
	}
}

// Column is one (name, type) pair of the inferred table schema. AllNull
// marks a column that held no values at all: its Type is a default for
// table creation, not evidence, and must not conflict with a stored type.
type Column struct {
	Name    string
	Type    ColumnType
	AllNull bool
}

// Value is a single parsed CSV field. Raw preserves the original cell text
// so that a column later widened to text keeps values like "007" intact.
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Raw   string
}

// Infer parses a raw cell into a typed Value. Inference order is
// integer, then float, then text. Empty cells map to null.
func Infer(raw string) Value {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Value{Kind: KindNull}
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Value{Kind: KindInteger, Int: i, Raw: s}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Value{Kind: KindFloat, Float: f, Raw: s}
	}
	return Value{Kind: KindText, Raw: s}
}

// Arg returns the value as a driver argument for a column of type t.
// Nulls are nil regardless of column type. Integer values widen to float64
// for float columns; any value falls back to its raw text for text columns.
func (v Value) Arg(t ColumnType) any {
	if v.Kind == KindNull {
		return nil
	}
	switch t {
	case TypeInteger:
		return v.Int
	case TypeFloat:
		if v.Kind == KindInteger {
			return float64(v.Int)
		}
		return v.Float
	default:
		return v.Raw
	}
}

// widen returns the wider of two column types.
func widen(a, b ColumnType) ColumnType {
	if a > b {
		return a
	}
	return b
}

// columnTypeOf maps a value kind to the narrowest column type that holds it.
// Nulls carry no type information and map to TypeInteger so they never widen
// a column on their own.
func columnTypeOf(k Kind) ColumnType {
	switch k {
	case KindInteger, KindNull:
		return TypeInteger
	case KindFloat:
		return TypeFloat
	default:
		return TypeText
	}
}
