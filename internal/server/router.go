package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openjobspec/ojs-job-chief/internal/api"
)

// NewRouter wires the status and control endpoints.
func NewRouter(h *api.Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(api.Headers)
	r.Use(api.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/liveness", h.Liveness)
	r.Get("/states", h.States)
	r.Get("/stats", h.Stats)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/queues/{name}", func(r chi.Router) {
		r.Get("/history", h.History)
		r.With(api.LimitBody, api.ValidateContentType).Post("/trigger", h.Trigger)
	})

	return r
}
