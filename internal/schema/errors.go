package schema

import (
	"errors"
	"fmt"
)

// Load-time failure classes. A schema that trips any of these is rejected
// whole; no partial registry is ever returned.
var (
	// ErrMalformedSpec marks a widget entry whose shape does not match any
	// supported encoding (wrong key combination, wrong list arity, etc.).
	ErrMalformedSpec = errors.New("schema: malformed widget spec")

	// ErrOutOfRange marks a byte or bit index outside the frame bounds.
	ErrOutOfRange = errors.New("schema: index out of range")

	// ErrDuplicateField marks a widget name defined more than once.
	ErrDuplicateField = errors.New("schema: duplicate widget name")
)

// FieldError attaches the offending widget name to one of the sentinel
// load errors above. Use errors.Is to test for the class.
type FieldError struct {
	Field  string
	Err    error
	Detail string
}

func (e *FieldError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%v: widget %q", e.Err, e.Field)
	}
	return fmt.Sprintf("%v: widget %q: %s", e.Err, e.Field, e.Detail)
}

func (e *FieldError) Unwrap() error { return e.Err }

func fieldErr(field string, sentinel error, format string, args ...any) error {
	return &FieldError{Field: field, Err: sentinel, Detail: fmt.Sprintf(format, args...)}
}
