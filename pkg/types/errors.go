package types

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of booking errors
type ErrorType string

const (
	// ErrorTypeConflict marks a booking attempt that collided with an
	// existing active appointment. Recoverable: re-resolve slots and
	// let the user pick again.
	ErrorTypeConflict ErrorType = "conflict"

	// ErrorTypeValidation marks malformed or missing input. Not retryable
	// without the caller fixing the request.
	ErrorTypeValidation ErrorType = "validation"

	// ErrorTypeNotFound marks a missing appointment, rule or override.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeStorage marks an underlying persistence failure, retryable
	// under the caller's generic retry policy.
	ErrorTypeStorage ErrorType = "storage"
)

// BookingError is the structured error returned by booking operations
type BookingError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *BookingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *BookingError) Unwrap() error {
	return e.Cause
}

// NewSlotConflictError creates the error returned when a reservation loses
// the race for a window or targets a window that is already occupied.
func NewSlotConflictError(message string, details map[string]interface{}) *BookingError {
	return &BookingError{
		Type:    ErrorTypeConflict,
		Code:    ErrCodeSlotConflict,
		Message: message,
		Details: details,
	}
}

// NewInvalidRequestError creates a new validation error
func NewInvalidRequestError(message string, details map[string]interface{}) *BookingError {
	return &BookingError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeInvalidRequest,
		Message: message,
		Details: details,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *BookingError {
	return &BookingError{
		Type:    ErrorTypeNotFound,
		Code:    ErrCodeNotFound,
		Message: message,
	}
}

// NewStorageError creates a new storage error wrapping the driver failure
func NewStorageError(message string, cause error) *BookingError {
	return &BookingError{
		Type:    ErrorTypeStorage,
		Code:    ErrCodeStorageFailure,
		Message: message,
		Cause:   cause,
	}
}

// IsSlotConflict reports whether err is a slot conflict
func IsSlotConflict(err error) bool { return hasType(err, ErrorTypeConflict) }

// IsInvalidRequest reports whether err is a validation failure
func IsInvalidRequest(err error) bool { return hasType(err, ErrorTypeValidation) }

// IsNotFound reports whether err is a not-found failure
func IsNotFound(err error) bool { return hasType(err, ErrorTypeNotFound) }

// IsStorageError reports whether err is a persistence failure
func IsStorageError(err error) bool { return hasType(err, ErrorTypeStorage) }

func hasType(err error, t ErrorType) bool {
	var be *BookingError
	return errors.As(err, &be) && be.Type == t
}

// Common error codes
const (
	ErrCodeSlotConflict   = "SLOT_CONFLICT"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeStorageFailure = "STORAGE_FAILURE"
)
