package ports

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("session not found")
	ErrInvalidState = errors.New("invalid session state")
	ErrShuttingDown = errors.New("registry shutting down")

	ErrDuplicate         = fmt.Errorf("%w: session already exists", ErrValidation)
	ErrUnsupportedPolicy = fmt.Errorf("%w: unsupported policy kind", ErrValidation)
	ErrEmptyChunk        = errors.New("prediction returned an empty action chunk")
)

// ValidationError names the offending field of a rejected request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ErrValidation.Error()
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid is shorthand for a *ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
