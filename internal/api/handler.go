package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openjobspec/ojs-job-chief/internal/core"
)

// Manager is the part of the jobs manager the API exposes.
type Manager interface {
	Queues() []string
	ActiveRuns() map[string]string
	Trigger(ctx context.Context, queue string, startAfter time.Duration) (string, error)
}

// StateSource reports the latest per-queue counters.
type StateSource interface {
	GetQueuesStates() map[string]core.QueueStat
}

// HistorySource lists finished runs of a queue, newest first.
type HistorySource interface {
	ListByQueue(ctx context.Context, queue string, limit int) ([]core.RunRecord, error)
}

// maxHistoryLimit caps the limit query parameter of the history endpoint.
const maxHistoryLimit = 500

// QueueStatus is one entry of the /stats response.
type QueueStatus struct {
	Active  bool   `json:"active"`
	JobName string `json:"job_name,omitempty"`
}

// TriggerRequest is the optional body of a manual trigger.
type TriggerRequest struct {
	StartAfter string `json:"start_after"`
}

// TriggerResponse reports whether a new trigger was stored.
type TriggerResponse struct {
	Queue     string `json:"queue"`
	TriggerID string `json:"trigger_id,omitempty"`
	Scheduled bool   `json:"scheduled"`
}

// HistoryResponse wraps the run list of a queue.
type HistoryResponse struct {
	Queue string           `json:"queue"`
	Runs  []core.RunRecord `json:"runs"`
}

// Handler serves the status and control endpoints.
type Handler struct {
	manager Manager
	states  StateSource
	history HistorySource
}

// NewHandler creates a Handler. history may be nil when run history is
// disabled.
func NewHandler(manager Manager, states StateSource, history HistorySource) *Handler {
	return &Handler{manager: manager, states: states, history: history}
}

// Liveness handles GET /liveness.
func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": core.Version})
}

// States handles GET /states.
func (h *Handler) States(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.states.GetQueuesStates())
}

// Stats handles GET /stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	active := h.manager.ActiveRuns()
	out := make(map[string]QueueStatus, len(h.manager.Queues()))
	for _, q := range h.manager.Queues() {
		name, ok := active[q]
		out[q] = QueueStatus{Active: ok, JobName: name}
	}
	WriteJSON(w, http.StatusOK, out)
}

// History handles GET /queues/{name}/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "name")
	if h.history == nil {
		WriteError(w, http.StatusServiceUnavailable, core.NewUnavailableError("run history is disabled"))
		return
	}
	if !h.known(queue) {
		WriteError(w, http.StatusNotFound, core.NewNotFoundError("Queue", queue))
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHistoryLimit {
			WriteError(w, http.StatusBadRequest, core.NewInvalidRequestError(
				"limit must be between 1 and "+strconv.Itoa(maxHistoryLimit), map[string]any{"limit": v}))
			return
		}
		limit = n
	}

	runs, err := h.history.ListByQueue(r.Context(), queue, limit)
	if err != nil {
		HandleError(w, err)
		return
	}
	if runs == nil {
		runs = []core.RunRecord{}
	}
	WriteJSON(w, http.StatusOK, HistoryResponse{Queue: queue, Runs: runs})
}

// Trigger handles POST /queues/{name}/trigger.
func (h *Handler) Trigger(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "name")

	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		WriteError(w, http.StatusBadRequest, core.NewInvalidRequestError("invalid JSON body", map[string]any{"error": err.Error()}))
		return
	}
	var startAfter time.Duration
	if req.StartAfter != "" {
		d, err := core.ParseDuration(req.StartAfter)
		if err != nil {
			WriteError(w, http.StatusBadRequest, core.NewValidationError(err.Error(), map[string]any{"start_after": req.StartAfter}))
			return
		}
		startAfter = d
	}

	id, err := h.manager.Trigger(r.Context(), queue, startAfter)
	if err != nil {
		if errors.Is(err, core.ErrUnknownQueue) {
			WriteError(w, http.StatusNotFound, core.NewNotFoundError("Queue", queue))
			return
		}
		HandleError(w, err)
		return
	}

	status := http.StatusAccepted
	if id == "" {
		status = http.StatusOK
	}
	WriteJSON(w, status, TriggerResponse{Queue: queue, TriggerID: id, Scheduled: id != ""})
}

func (h *Handler) known(queue string) bool {
	for _, q := range h.manager.Queues() {
		if q == queue {
			return true
		}
	}
	return false
}
