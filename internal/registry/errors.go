package registry

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownType matches every *UnknownTypeError.
	ErrUnknownType = errors.New("unknown node type")
	// ErrUnknownField is reported when a payload names a field the kind lacks.
	ErrUnknownField = errors.New("unknown payload field")
	// ErrNoHandler is reported when a kind's handler name is not registered.
	ErrNoHandler = errors.New("no handler registered")
)

// UnknownTypeError is returned when a type tag has no registered definition.
// Reaching it from the palette is a programmer error: palette entries are
// generated from the registry itself.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown node type '%s'", e.Type)
}

func (e *UnknownTypeError) Is(target error) bool { return target == ErrUnknownType }

// PayloadError reports a payload value rejected by a kind's field schema.
type PayloadError struct {
	Type  string
	Field string
	Err   error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("node type '%s', field '%s': %v", e.Type, e.Field, e.Err)
}

func (e *PayloadError) Unwrap() error { return e.Err }

// ValidationError lists every registry inconsistency found at startup.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("registry validation failed:\n- %s", strings.Join(e.Problems, "\n- "))
}
