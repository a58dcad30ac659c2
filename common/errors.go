package common

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ValidationError is an error caused by malformed or out-of-range input. It
// carries field-level detail for the caller.
type ValidationError struct {
	fields map[string]string
}

// NewValidationError returns a new validation error with a single field message.
func NewValidationError(field, formatString string, a ...interface{}) *ValidationError {
	e := &ValidationError{fields: map[string]string{}}
	e.fields[field] = fmt.Sprintf(formatString, a...)
	return e
}

// Add records an additional field message.
func (e *ValidationError) Add(field, formatString string, a ...interface{}) *ValidationError {
	e.fields[field] = fmt.Sprintf(formatString, a...)
	return e
}

// Fields returns the per-field error messages.
func (e *ValidationError) Fields() map[string]string {
	return e.fields
}

// Error returns the error message for a ValidationError.
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.fields))
	for field, message := range e.fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, message))
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(parts, "; "))
}

// NotFoundError is an error caused by a reference to an entity that does not exist.
type NotFoundError struct {
	message string
}

// NewNotFoundError returns a new error indicating that an entity could not be found.
func NewNotFoundError(formatString string, a ...interface{}) NotFoundError {
	return NotFoundError{message: fmt.Sprintf(formatString, a...)}
}

// Error returns the error message for a NotFoundError.
func (e NotFoundError) Error() string {
	return e.message
}

// ForbiddenError is an error caused by an ownership or role violation.
type ForbiddenError struct {
	message string
}

// NewForbiddenError returns a new error indicating that the caller may not perform
// the requested operation.
func NewForbiddenError(formatString string, a ...interface{}) ForbiddenError {
	return ForbiddenError{message: fmt.Sprintf(formatString, a...)}
}

// Error returns the error message for a ForbiddenError.
func (e ForbiddenError) Error() string {
	return e.message
}

// DependencyError is an error caused by an unreachable collaborator, such as the
// database or the user directory. Operations that fail with a DependencyError
// may be retried.
type DependencyError struct {
	message string
	cause   error
}

// NewDependencyError returns a new error indicating that a collaborating service
// could not be reached.
func NewDependencyError(cause error, formatString string, a ...interface{}) DependencyError {
	return DependencyError{message: fmt.Sprintf(formatString, a...), cause: cause}
}

// Error returns the error message for a DependencyError.
func (e DependencyError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.message, e.cause.Error())
	}
	return e.message
}

// Unwrap returns the underlying cause of a DependencyError.
func (e DependencyError) Unwrap() error {
	return e.cause
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	var notFound NotFoundError
	return errors.As(err, &notFound)
}

// IsForbidden returns true if the error indicates an ownership or role violation.
func IsForbidden(err error) bool {
	var forbidden ForbiddenError
	return errors.As(err, &forbidden)
}

// IsValidation returns true if the error indicates malformed input.
func IsValidation(err error) bool {
	var validation *ValidationError
	return errors.As(err, &validation)
}
