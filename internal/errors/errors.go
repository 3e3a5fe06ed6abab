// Package errors consolidates error definitions for the tracker scalar store.
//
// This file provides:
// - Sentinel errors for all error conditions
// - Error category checking functions
// - Error wrapping utilities
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Validation errors
	ErrInvalidProject   = errors.New("invalid project id")
	ErrInvalidTimeRange = errors.New("invalid time range")
	ErrInvalidConfig    = errors.New("invalid configuration")

	// Schema errors. These are fatal for the call that hit them:
	// a derived table or column name that fails the identifier grammar
	// must never reach generated SQL.
	ErrUnsafeIdentifier = errors.New("identifier failed safety validation")

	// Backend errors
	ErrBackendUnavailable = errors.New("storage backend unavailable")
	ErrTimeout            = errors.New("timeout")
	ErrDatabase           = errors.New("database error")

	// Allocation errors
	ErrColumnExhausted = errors.New("column identifier allocation exhausted")

	// State errors
	ErrStoreClosed = errors.New("store is closed")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// IsValidation returns true if err is a validation error: the caller's input
// was rejected and retrying the same call cannot succeed.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidProject) ||
		errors.Is(err, ErrInvalidTimeRange) ||
		errors.Is(err, ErrInvalidConfig)
}

// IsRetriable returns true if the error is potentially retriable by the
// caller. The store itself performs no internal retry loop: partial schema
// changes are idempotent but partial row inserts are not guaranteed to be.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable) ||
		errors.Is(err, ErrTimeout)
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the first error for errors.Is/As support.
func (v *ValidationErrors) Unwrap() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v.Errors[0]
}
