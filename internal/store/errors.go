package store

import (
	"errors"
	"fmt"

	"github.com/phrazzld/measure-hub/internal/fhir"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested resource does not exist in the store.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict is returned when an update carried a version that no longer
	// matches the stored one. Callers must re-fetch; it is never retried here.
	ErrConflict = errors.New("version conflict")

	// ErrBadRequest is returned when the store rejected a request as invalid.
	// The concrete *BadRequestError carries the store's diagnostics.
	ErrBadRequest = errors.New("bad request")

	// ErrMissingVersion is returned when an update is attempted with a resource
	// that was never read from the store.
	ErrMissingVersion = errors.New("resource has no version id")
)

// ResourceNotFoundError names the resource that could not be found.
type ResourceNotFoundError struct {
	Type string
	ID   string
}

// Error implements the error interface.
func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("%s with id %q not found", e.Type, e.ID)
}

// Unwrap lets errors.Is match ErrNotFound.
func (e *ResourceNotFoundError) Unwrap() error {
	return ErrNotFound
}

// BadRequestError carries the OperationOutcome returned with a 400 response.
type BadRequestError struct {
	Outcome *fhir.OperationOutcome
}

// Error implements the error interface.
func (e *BadRequestError) Error() string {
	if summary := e.Outcome.Summary(); summary != "" {
		return fmt.Sprintf("bad request: %s", summary)
	}
	return "bad request"
}

// Unwrap lets errors.Is match ErrBadRequest.
func (e *BadRequestError) Unwrap() error {
	return ErrBadRequest
}

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflictError checks if the error is an optimistic-concurrency conflict.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}

// StoreError is a custom error type for transport failures and unexpected
// responses, with the context of the failed interaction.
type StoreError struct {
	Entity    string // The resource type (e.g., "Task", "MeasureReport")
	Operation string // The interaction that failed (e.g., "read", "update")
	Message   string // Error message
	Err       error  // Original error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf(
			"%s operation on %s failed: %s: %v",
			e.Operation,
			e.Entity,
			e.Message,
			e.Err,
		)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError with the given entity, operation, message, and wrapped error.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
