// Package apperrors classifies relay errors and maps them to HTTP status codes.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation  = errors.New("validation error")
	ErrTooLarge    = errors.New("payload too large")
	ErrUnavailable = errors.New("service unavailable")
	ErrInternal    = errors.New("internal error")
)

// Error carries a sentinel plus request context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Field    string // Offending field for validation errors (e.g., "events[2].context.account_id")
	Op       string // Operation that failed (e.g., "processor.process")
	Cause    error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel error for errors.Is() classification.
func (e *Error) Unwrap() error {
	return e.Sentinel
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// TooLarge reports a request exceeding limit.
func TooLarge(what string, limit int) error {
	return &Error{
		Sentinel: ErrTooLarge,
		Message:  fmt.Sprintf("%s exceeds limit of %d", what, limit),
		Field:    what,
	}
}

// Unavailable reports that the relay cannot accept work right now.
func Unavailable(reason string) error {
	return &Error{
		Sentinel: ErrUnavailable,
		Message:  reason,
	}
}

// Internal wraps an unexpected failure.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}
