package core

import (
	"encoding/json"
	"time"
)

// RunRecord is the result of one run cycle of a queue.
type RunRecord struct {
	ID           string
	Queue        string
	JobName      string
	Outcome      string
	Reason       string
	Message      string
	StartedAt    time.Time
	FinishedAt   time.Time
	NextRunAfter time.Duration
}

type runRecordJSON struct {
	ID             string `json:"id"`
	Queue          string `json:"queue"`
	JobName        string `json:"job_name,omitempty"`
	Outcome        string `json:"outcome"`
	Reason         string `json:"reason,omitempty"`
	Message        string `json:"message,omitempty"`
	StartedAt      string `json:"started_at"`
	FinishedAt     string `json:"finished_at"`
	NextRunAfterMs int64  `json:"next_run_after_ms"`
}

// MarshalJSON renders timestamps with FormatTime and the delay in milliseconds.
func (r RunRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(runRecordJSON{
		ID:             r.ID,
		Queue:          r.Queue,
		JobName:        r.JobName,
		Outcome:        r.Outcome,
		Reason:         r.Reason,
		Message:        r.Message,
		StartedAt:      FormatTime(r.StartedAt),
		FinishedAt:     FormatTime(r.FinishedAt),
		NextRunAfterMs: r.NextRunAfter.Milliseconds(),
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *RunRecord) UnmarshalJSON(data []byte) error {
	var w runRecordJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	started, err := ParseTime(w.StartedAt)
	if err != nil {
		return err
	}
	finished, err := ParseTime(w.FinishedAt)
	if err != nil {
		return err
	}
	*r = RunRecord{
		ID:           w.ID,
		Queue:        w.Queue,
		JobName:      w.JobName,
		Outcome:      w.Outcome,
		Reason:       w.Reason,
		Message:      w.Message,
		StartedAt:    started,
		FinishedAt:   finished,
		NextRunAfter: time.Duration(w.NextRunAfterMs) * time.Millisecond,
	}
	return nil
}

// Duration is the wall time between the start and the end of the run.
func (r *RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
