package core

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestQueueStat_SetRecomputesAll(t *testing.T) {
	var s QueueStat
	if !s.Set(StatCreated, 4) {
		t.Fatal("Set(created) = false")
	}
	if !s.SetString(StatFailed, "2") {
		t.Fatal("SetString(failed) = false")
	}
	if s.Set("archived", 9) {
		t.Error("Set(archived) = true, want false for unknown stat")
	}
	if s.SetString(StatActive, "many") {
		t.Error("SetString with non-numeric value should fail")
	}
	if s.All != 6 {
		t.Errorf("All = %d, want 6", s.All)
	}
}

func TestTrigger_Ready(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tr := &Trigger{NotBefore: now}
	if !tr.Ready(now) {
		t.Error("trigger should be ready exactly at NotBefore")
	}
	if tr.Ready(now.Add(-time.Millisecond)) {
		t.Error("trigger should not be ready before NotBefore")
	}
}

func TestFormatTime(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 890_000_000, time.FixedZone("x", 3600))
	got := FormatTime(ts)
	if got != "2026-03-04T04:06:07.890Z" {
		t.Errorf("FormatTime() = %q", got)
	}
	back, err := ParseTime(got)
	if err != nil {
		t.Fatalf("ParseTime() error = %v", err)
	}
	if !back.Equal(ts) {
		t.Errorf("ParseTime() = %v, want %v", back, ts)
	}
}

func TestRunRecord_JSON(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := RunRecord{
		ID:           "r1",
		Queue:        "emails",
		Outcome:      OutcomeCompleted,
		StartedAt:    started,
		FinishedAt:   started.Add(90 * time.Second),
		NextRunAfter: 5 * time.Second,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"next_run_after_ms":5000`) {
		t.Errorf("Marshal() = %s, want delay in milliseconds", data)
	}
	if strings.Contains(string(data), "job_name") {
		t.Errorf("Marshal() = %s, empty job name should be omitted", data)
	}

	var back RunRecord
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back.Duration() != 90*time.Second || back.NextRunAfter != 5*time.Second {
		t.Errorf("Unmarshal() = %+v", back)
	}
}
