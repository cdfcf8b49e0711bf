package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/openjobspec/ojs-job-chief/internal/core"
)

// MediaType is the content type of every API response.
const MediaType = "application/json"

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries a core.Error plus the request ID.
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", MediaType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// WriteError writes e with the given status.
func WriteError(w http.ResponseWriter, status int, e *core.Error) {
	WriteJSON(w, status, ErrorResponse{Error: ErrorBody{
		Code:      e.Code,
		Message:   e.Message,
		Retryable: e.Retryable,
		Details:   e.Details,
		RequestID: w.Header().Get(RequestIDHeader),
	}})
}

// HandleError maps err to a status code and writes it.
func HandleError(w http.ResponseWriter, err error) {
	var apiErr *core.Error
	if errors.As(err, &apiErr) {
		WriteError(w, statusFor(apiErr.Code), apiErr)
		return
	}
	if errors.Is(err, core.ErrUnknownQueue) {
		WriteError(w, http.StatusNotFound, &core.Error{Code: core.ErrCodeNotFound, Message: err.Error()})
		return
	}
	slog.Error("request failed", "error", err)
	WriteError(w, http.StatusInternalServerError, core.NewInternalError(err.Error()))
}

func statusFor(code string) int {
	switch code {
	case core.ErrCodeInvalidRequest, core.ErrCodeValidationError:
		return http.StatusBadRequest
	case core.ErrCodeNotFound:
		return http.StatusNotFound
	case core.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
