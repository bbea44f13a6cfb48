package schema

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSchemaViolation matches validation failures caused by the data.
	ErrSchemaViolation = errors.New("schema violation")

	// ErrEngine matches failures of the validator itself.
	ErrEngine = errors.New("validation engine error")
)

// ErrorKind distinguishes invalid data from a broken validator.
type ErrorKind string

const (
	KindSchemaViolation ErrorKind = "schema-violation"
	KindEngineError     ErrorKind = "engine-error"
)

// FailureCase is one row/column pair that violated a constraint.
// Row is -1 for failures that concern a whole column.
type FailureCase struct {
	Row    int
	Column string
	Check  string
	Value  any
}

func (c FailureCase) String() string {
	if c.Row < 0 {
		return fmt.Sprintf("column %s: %s", c.Column, c.Check)
	}
	return fmt.Sprintf("row %d column %s: %s (value %v)", c.Row, c.Column, c.Check, c.Value)
}

// ValidationError is returned when a frame cannot become a Dataset.
type ValidationError struct {
	Kind  ErrorKind
	Table string
	Cases []FailureCase

	// Cause is set for engine errors.
	Cause error
}

// maxListedCases bounds how many cases Error prints.
const maxListedCases = 10

func (e *ValidationError) Error() string {
	var b strings.Builder
	if e.Kind == KindEngineError {
		fmt.Fprintf(&b, "validate %s: %s", e.Table, ErrEngine)
		if e.Cause != nil {
			fmt.Fprintf(&b, ": %v", e.Cause)
		}
		return b.String()
	}

	fmt.Fprintf(&b, "validate %s: %s: %d failure case(s)", e.Table, ErrSchemaViolation, len(e.Cases))
	for i, c := range e.Cases {
		if i == maxListedCases {
			fmt.Fprintf(&b, "; and %d more", len(e.Cases)-i)
			break
		}
		b.WriteString("; ")
		b.WriteString(c.String())
	}
	return b.String()
}

func (e *ValidationError) Is(target error) bool {
	switch target {
	case ErrSchemaViolation:
		return e.Kind == KindSchemaViolation
	case ErrEngine:
		return e.Kind == KindEngineError
	}
	return false
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// Columns returns the distinct columns that appear in the failure cases.
func (e *ValidationError) Columns() []string {
	var cols []string
	seen := make(map[string]bool)
	for _, c := range e.Cases {
		if !seen[c.Column] {
			seen[c.Column] = true
			cols = append(cols, c.Column)
		}
	}
	return cols
}
