package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openjobspec/ojs-job-chief/internal/core"
)

// --- WriteJSON Tests ---

func TestWriteJSON_200Struct(t *testing.T) {
	w := httptest.NewRecorder()
	data := struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}{Name: "reports", Count: 42}

	WriteJSON(w, http.StatusOK, data)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != MediaType {
		t.Errorf("Content-Type = %q, want %q", ct, MediaType)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["name"] != "reports" {
		t.Errorf("name = %v, want %q", resp["name"], "reports")
	}
	if resp["count"] != float64(42) {
		t.Errorf("count = %v, want %v", resp["count"], 42)
	}
}

func TestWriteJSON_200Slice(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusOK, []string{"alpha", "beta", "gamma"})

	var resp []string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp) != 3 {
		t.Errorf("len = %d, want 3", len(resp))
	}
}

// --- WriteError Tests ---

func TestWriteError_400InvalidRequest(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusBadRequest, core.NewInvalidRequestError("missing required field", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Error.Code != core.ErrCodeInvalidRequest {
		t.Errorf("code = %q, want %q", resp.Error.Code, core.ErrCodeInvalidRequest)
	}
	if resp.Error.Message != "missing required field" {
		t.Errorf("message = %q, want %q", resp.Error.Message, "missing required field")
	}
}

func TestWriteError_500InternalWithRetryable(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusInternalServerError, core.NewInternalError("connection lost"))

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.Error.Retryable {
		t.Error("internal errors should be retryable")
	}
}

func TestWriteError_IncludesRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set(RequestIDHeader, "req_test-123")

	WriteError(w, http.StatusBadRequest, core.NewInvalidRequestError("bad input", nil))

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Error.RequestID != "req_test-123" {
		t.Errorf("request_id = %q, want %q", resp.Error.RequestID, "req_test-123")
	}
}

// --- HandleError Tests ---

func TestHandleError_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", core.NewNotFoundError("Queue", "ghost"), http.StatusNotFound, core.ErrCodeNotFound},
		{"validation", core.NewValidationError("bad", nil), http.StatusBadRequest, core.ErrCodeValidationError},
		{"unavailable", core.NewUnavailableError("down"), http.StatusServiceUnavailable, core.ErrCodeUnavailable},
		{"wrapped api error", fmt.Errorf("list: %w", core.NewInvalidRequestError("x", nil)), http.StatusBadRequest, core.ErrCodeInvalidRequest},
		{"unknown queue", fmt.Errorf("queue ghost: %w", core.ErrUnknownQueue), http.StatusNotFound, core.ErrCodeNotFound},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, core.ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			HandleError(w, tt.err)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if resp.Error.Code != tt.code {
				t.Errorf("code = %q, want %q", resp.Error.Code, tt.code)
			}
		})
	}
}
