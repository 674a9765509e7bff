package constraint

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for use with errors.Is.
var (
	ErrInvalid     = errors.New("invalid constraint")
	ErrNotFound    = errors.New("constraint not found")
	ErrAmbiguousID = errors.New("ambiguous constraint id")
	ErrCorrupt     = errors.New("corrupt persisted state")
)

// ValidationError reports a malformed constraint or argument.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// Is matches ErrInvalid.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

// NewValidationError creates a ValidationError with a formatted message.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

// NotFoundError reports an id or prefix that resolved to no constraint.
type NotFoundError struct {
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("constraint %q not found", e.ID)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// AmbiguousIDError reports an id prefix that resolved to more than one
// constraint.
type AmbiguousIDError struct {
	Prefix  string
	Matches []string
}

// Error implements the error interface.
func (e *AmbiguousIDError) Error() string {
	return fmt.Sprintf("id prefix %q is ambiguous: matches %s", e.Prefix, strings.Join(e.Matches, ", "))
}

// Is matches ErrAmbiguousID.
func (e *AmbiguousIDError) Is(target error) bool {
	return target == ErrAmbiguousID
}

// StorageError represents an I/O or corruption failure in a storage backend.
type StorageError struct {
	Backend   string // Storage backend type ("file", "sqlite", "memory")
	Operation string // Operation that failed ("load_constraints", "save_analytics", ...)
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// IsCorrupt reports whether err signals unreadable persisted state.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorrupt)
}
