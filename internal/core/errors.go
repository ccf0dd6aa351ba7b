package core

// errors.go defines the error taxonomy for the record store and maps
// technical errors to user-facing messages with support codes.
//
// Error codes:
//
//	CSV001 - Malformed CSV upload
//	SCH001 - Schema conflict between upload and existing table
//	REC001 - Record not found
//	VAL001 - Invalid field in request payload
//	DB001  - Database unreachable
//	DB002  - Database operation timed out
//	ERR000 - Unknown error (check server logs)
//
// Patterns are matched case-insensitively with strings.Contains; the first
// match wins, so specific patterns come before general ones.

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tabledrop/tabledrop/internal/ingest"
)

// ErrNotFound is returned when no record exists with the requested id.
var ErrNotFound = errors.New("record not found")

// SchemaConflictError is returned when an upload's inferred column type is
// incompatible with the type already stored for that column.
type SchemaConflictError struct {
	Column   string
	Existing string
	Inferred string
}

func (e *SchemaConflictError) Error() string {
	return fmt.Sprintf("schema conflict on column %q: table has %s, upload has %s",
		e.Column, e.Existing, e.Inferred)
}

// ValidationError is returned when a request payload references an unknown
// column or supplies a value whose type conflicts with the column's type.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid field %q: %s", e.Field, e.Message)
	}
	return e.Message
}

// UserMessage provides user-friendly error information with a support code.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern maps a substring of a technical error to a user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the database",
			Action:  "Please try again in a few moments",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "The database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB001",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The operation timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "DB002",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "The operation timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "DB002",
		},
	},
}

// defaultMessage is the fallback for unexpected errors. Check server logs
// for the original technical error when users report ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Typed errors from the taxonomy are matched first, then known database
// error patterns; anything else falls back to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var malformed *ingest.MalformedInputError
	if errors.As(err, &malformed) {
		return UserMessage{
			Message: malformed.Error(),
			Action:  "Fix the file and upload it again",
			Code:    "CSV001",
		}
	}

	var conflict *SchemaConflictError
	if errors.As(err, &conflict) {
		return UserMessage{
			Message: conflict.Error(),
			Action:  "Upload data matching the existing column types, or use a new table",
			Code:    "SCH001",
		}
	}

	var invalid *ValidationError
	if errors.As(err, &invalid) {
		return UserMessage{
			Message: invalid.Error(),
			Action:  "Check the field names and value types in your request",
			Code:    "VAL001",
		}
	}

	if errors.Is(err, ErrNotFound) {
		return UserMessage{
			Message: "Record not found",
			Action:  "Check the record id",
			Code:    "REC001",
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}
