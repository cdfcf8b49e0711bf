package core

import (
	"errors"
	"fmt"
)

// Error codes returned by the HTTP API.
const (
	ErrCodeInvalidRequest  = "invalid_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeValidationError = "validation_error"
	ErrCodeInternalError   = "internal_error"
	ErrCodeUnavailable     = "unavailable"
)

var (
	// ErrJobAlreadyStarted is returned by a second StartJob on the same workload.
	ErrJobAlreadyStarted = errors.New("job already started")
	// ErrJobNotStarted is returned by DeleteJob before the job was created.
	ErrJobNotStarted = errors.New("job not started")
	// ErrUnknownQueue is returned when a trigger names a queue without config.
	ErrUnknownQueue = errors.New("unknown queue")
	// ErrInvalidConfig wraps queue configuration problems.
	ErrInvalidConfig = errors.New("invalid queue config")
	// ErrTriggerClaimed is returned when another dispatcher completed the trigger first.
	ErrTriggerClaimed = errors.New("trigger already claimed")
)

// Error is a structured error rendered by the HTTP API.
type Error struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string, details map[string]any) *Error {
	return &Error{
		Code:    ErrCodeInvalidRequest,
		Message: message,
		Details: details,
	}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(resourceType, resourceID string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s '%s' not found.", resourceType, resourceID),
		Details: map[string]any{
			"resource_type": resourceType,
			"resource_id":   resourceID,
		},
	}
}

// NewValidationError creates a validation error.
func NewValidationError(message string, details map[string]any) *Error {
	return &Error{
		Code:    ErrCodeValidationError,
		Message: message,
		Details: details,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(message string) *Error {
	return &Error{
		Code:      ErrCodeInternalError,
		Message:   message,
		Retryable: true,
	}
}

// NewUnavailableError reports a dependency that is not configured or not reachable.
func NewUnavailableError(message string) *Error {
	return &Error{
		Code:      ErrCodeUnavailable,
		Message:   message,
		Retryable: true,
	}
}
