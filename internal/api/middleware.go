package api

import (
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/openjobspec/ojs-job-chief/internal/core"
)

// MaxBodySize limits request bodies.
const MaxBodySize = 1 << 20

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-Id"

// VersionHeader reports the server version on every response.
const VersionHeader = "X-Job-Chief-Version"

// Headers sets the version header and echoes or generates a request ID.
func Headers(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(RequestIDHeader)
		if reqID == "" {
			reqID = "req_" + core.NewUUIDv7()
		}
		w.Header().Set(RequestIDHeader, reqID)
		w.Header().Set(VersionHeader, core.Version)
		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs every request with structured fields.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", w.Header().Get(RequestIDHeader),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// LimitBody restricts request bodies to MaxBodySize.
func LimitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
		next.ServeHTTP(w, r)
	})
}

// ValidateContentType rejects POST bodies that are not JSON. An empty
// content type is allowed.
func ValidateContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if ct := r.Header.Get("Content-Type"); ct != "" {
				mt, _, err := mime.ParseMediaType(ct)
				if err != nil || mt != MediaType {
					WriteError(w, http.StatusBadRequest, core.NewInvalidRequestError(
						"unsupported content type", map[string]any{"content_type": ct}))
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}
