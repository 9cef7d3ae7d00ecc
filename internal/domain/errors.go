package domain

import (
	"errors"
	"fmt"
)

// Common errors shared across the engine's operations.
var (
	// ErrNotFound indicates that a requested version, finding, test, or
	// template does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates that a mutation collided with the current state,
	// for example promoting a version under a mismatched algorithm type.
	ErrConflict = errors.New("conflict")

	// ErrNotInitialized indicates that no active version exists for an
	// algorithm type and the caller required strict presence.
	ErrNotInitialized = errors.New("algorithm type not initialized")

	// ErrValidation indicates malformed input: unknown algorithm or agent
	// types, empty or non-finite weight vectors, out-of-range scores.
	ErrValidation = errors.New("validation failed")

	// ErrPersistence indicates that the backing store was unavailable or
	// rejected an operation for infrastructure reasons.
	ErrPersistence = errors.New("persistence failure")
)

// StoreError wraps a failure from a store operation with the entity and
// operation that produced it.
type StoreError struct {
	// Entity names the record kind involved, such as "algorithm_version".
	Entity string

	// Operation describes the store operation that failed.
	Operation string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store error: entity=%s, operation=%s, err=%v", e.Entity, e.Operation, e.Err)
}

// Unwrap returns the underlying error, supporting errors.Is and errors.As.
func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError creates a StoreError with the given details.
func NewStoreError(entity, operation string, err error) *StoreError {
	return &StoreError{Entity: entity, Operation: operation, Err: err}
}

// ValidationError reports a rejected input with the field that failed.
// It unwraps to ErrValidation.
type ValidationError struct {
	// Field is the input that failed validation.
	Field string

	// Reason explains the failure in caller terms.
	Reason string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field=%s, reason=%s", e.Field, e.Reason)
}

// Unwrap lets callers match the error with errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
