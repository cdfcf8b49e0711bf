package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{Code: "not_found", Message: "Queue 'abc' not found."}
	got := err.Error()
	want := "[not_found] Queue 'abc' not found."
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestNewInvalidRequestError(t *testing.T) {
	err := NewInvalidRequestError("bad input", map[string]any{"field": "after"})
	if err.Code != ErrCodeInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrCodeInvalidRequest)
	}
	if err.Retryable {
		t.Error("expected Retryable = false")
	}
	if err.Details["field"] != "after" {
		t.Errorf("Details[field] = %v, want %q", err.Details["field"], "after")
	}
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("Queue", "emails")
	if err.Code != ErrCodeNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrCodeNotFound)
	}
	if err.Details["resource_type"] != "Queue" {
		t.Errorf("Details[resource_type] = %v, want %q", err.Details["resource_type"], "Queue")
	}
	if err.Details["resource_id"] != "emails" {
		t.Errorf("Details[resource_id] = %v, want %q", err.Details["resource_id"], "emails")
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("invalid field", nil)
	if err.Code != ErrCodeValidationError {
		t.Errorf("Code = %q, want %q", err.Code, ErrCodeValidationError)
	}
	if err.Retryable {
		t.Error("expected Retryable = false")
	}
}

func TestNewInternalError(t *testing.T) {
	err := NewInternalError("something broke")
	if err.Code != ErrCodeInternalError {
		t.Errorf("Code = %q, want %q", err.Code, ErrCodeInternalError)
	}
	if !err.Retryable {
		t.Error("expected Retryable = true for internal errors")
	}
}

func TestSentinelsSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("dispatch trigger for %q: %w", "ghost", ErrUnknownQueue)
	if !errors.Is(err, ErrUnknownQueue) {
		t.Fatalf("errors.Is(%v, ErrUnknownQueue) = false", err)
	}
	if errors.Is(err, ErrJobNotStarted) {
		t.Fatal("wrapped ErrUnknownQueue should not match ErrJobNotStarted")
	}
}
