package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation malformed or missing input; never retried
	ErrValidation = errors.New("validation error")
	// ErrStorage the repository could not persist a reading
	ErrStorage = errors.New("storage error")
	// ErrTransport the broker is unreachable
	ErrTransport = errors.New("transport error")
	// ErrQuery the repository could not be read
	ErrQuery = errors.New("query error")
)

// FieldError describes one invalid payload field
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("field '%s': %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match any FieldError
func (e *FieldError) Is(target error) bool {
	return target == ErrValidation
}

// StorageError wraps err as ErrStorage
func StorageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// QueryError wraps err as ErrQuery
func QueryError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrQuery, op, err)
}

// TransportError wraps err as ErrTransport
func TransportError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}
