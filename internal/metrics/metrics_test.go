package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/openjobspec/ojs-job-chief/internal/core"
)

func TestInit(t *testing.T) {
	Init("9.9.9", "nats")
	if got := testutil.ToFloat64(serverInfo.WithLabelValues("9.9.9", "nats")); got != 1 {
		t.Errorf("server_info = %v, want 1", got)
	}
}

func TestRecorder(t *testing.T) {
	queue := "metrics-recorder"
	start := time.Now()
	rec := core.RunRecord{
		Queue:        queue,
		JobName:      "job-chief-abc-" + queue + "-x7k2p",
		Outcome:      core.OutcomeCompleted,
		StartedAt:    start,
		FinishedAt:   start.Add(90 * time.Second),
		NextRunAfter: 30 * time.Second,
	}

	var r Recorder
	if err := r.RunFinished(context.Background(), rec); err != nil {
		t.Fatalf("RunFinished: %v", err)
	}
	empty := core.RunRecord{Queue: queue, Outcome: core.OutcomeEmpty, NextRunAfter: 10 * time.Second}
	if err := r.RunFinished(context.Background(), empty); err != nil {
		t.Fatalf("RunFinished: %v", err)
	}

	if got := testutil.ToFloat64(RunsTotal.WithLabelValues(queue, core.OutcomeCompleted)); got != 1 {
		t.Errorf("runs_total{completed} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(RunsTotal.WithLabelValues(queue, core.OutcomeEmpty)); got != 1 {
		t.Errorf("runs_total{empty} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(NextRunDelay.WithLabelValues(queue)); got != 10 {
		t.Errorf("next_run_delay = %v, want 10", got)
	}
}

type staticStates map[string]core.QueueStat

func (s staticStates) GetQueuesStates() map[string]core.QueueStat { return s }

type staticActive map[string]string

func (s staticActive) ActiveRuns() map[string]string { return s }

func TestCollector(t *testing.T) {
	st := core.QueueStat{}
	st.Set(core.StatCreated, 4)
	st.Set(core.StatFailed, 1)

	c := NewCollector(
		staticStates{"reports": st},
		staticActive{"reports": "job-chief-abc-reports-x7k2p"},
		[]string{"emails", "reports"},
	)
	reg := prometheus.NewPedanticRegistry()
	reg.MustRegister(c)

	// seven states for one queue plus one active flag per configured queue
	if n := testutil.CollectAndCount(c); n != 9 {
		t.Errorf("collected %d metrics, want 9", n)
	}

	expected := `
# HELP job_chief_active_run 1 while a queue has a run in flight.
# TYPE job_chief_active_run gauge
job_chief_active_run{queue="emails"} 0
job_chief_active_run{queue="reports"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "job_chief_active_run"); err != nil {
		t.Error(err)
	}
}

func TestCollectorNilSources(t *testing.T) {
	c := NewCollector(nil, nil, []string{"reports"})
	if n := testutil.CollectAndCount(c); n != 0 {
		t.Errorf("collected %d metrics, want 0", n)
	}
}
