package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a user or transaction does not exist
// (or is not owned by the requesting user).
var ErrNotFound = errors.New("not found")

// NewNotFound wraps ErrNotFound with the kind and id of the missing record.
func NewNotFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

// IsNotFound reports whether err signals a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ValidationError describes input rejected before any write.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a validation error for field.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
