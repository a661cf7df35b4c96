// Package repo provides typed accessors over the generic Store. Entity
// invariants are enforced here, at the write boundary.
package repo

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an entity lookup comes back empty.
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned when creating a duplicate entity.
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrNotAuthorized is returned when the writer is not the creator.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrNotClaimable is returned when an atomic job claim affects zero rows.
	ErrNotClaimable = errors.New("job is not claimable")
)

// ValidationError wraps a field-specific validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a field validation error.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError checks whether err is a validation error.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
