package manager

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/openjobspec/ojs-job-chief/internal/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

type fakeProvider struct {
	mu    sync.Mutex
	empty bool
	err   error
	calls int
}

func (p *fakeProvider) IsQueueEmpty(_ context.Context, _ string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.empty, p.err
}

type scheduled struct {
	name  string
	delay time.Duration
}

type fakeScheduler struct {
	mu    sync.Mutex
	calls []scheduled
	err   error
	ch    chan scheduled
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{ch: make(chan scheduled, 16)}
}

func (s *fakeScheduler) ScheduleJob(_ context.Context, name string, startAfter time.Duration) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, scheduled{name: name, delay: startAfter})
	err := s.err
	s.mu.Unlock()
	s.ch <- scheduled{name: name, delay: startAfter}
	if err != nil {
		return "", err
	}
	return core.NewUUIDv7(), nil
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type fakeWorkload struct {
	mu        sync.Mutex
	events    chan core.WorkloadEvent
	name      string
	startErr  error
	delay     time.Duration
	started   int
	deleted   int
	shutdowns int
}

func newFakeWorkload() *fakeWorkload {
	return &fakeWorkload{events: make(chan core.WorkloadEvent, 4), name: "job-chief-abc-reports-x7k2p"}
}

func (f *fakeWorkload) StartJob(_ context.Context) (string, error) {
	f.mu.Lock()
	delay := f.delay
	f.mu.Unlock()
	time.Sleep(delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	if f.startErr != nil {
		return "", f.startErr
	}
	return f.name, nil
}

func (f *fakeWorkload) DeleteJob(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted++
	return nil
}

func (f *fakeWorkload) Shutdown() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdowns++
	return nil
}

func (f *fakeWorkload) Events() <-chan core.WorkloadEvent {
	return f.events
}

func (f *fakeWorkload) counts() (started, deleted, shutdowns int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started, f.deleted, f.shutdowns
}

type recordingObserver struct {
	mu      sync.Mutex
	records []core.RunRecord
}

func (o *recordingObserver) RunFinished(_ context.Context, rec core.RunRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, rec)
	return nil
}

func (o *recordingObserver) last(t *testing.T) core.RunRecord {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.records) == 0 {
		t.Fatal("no run recorded")
	}
	return o.records[len(o.records)-1]
}

func testConfig() core.QueueJobConfig {
	return core.QueueJobConfig{
		QueueName:                  "reports",
		PodConfig:                  core.PodTemplate{Parallelism: 1, Image: "busybox"},
		QueueCheckInterval:         11 * time.Second,
		JobStartTimeout:            time.Hour,
		WaitTimeAfterSuccessfulRun: 22 * time.Second,
		WaitTimeAfterError:         33 * time.Second,
		WaitTimeAfterFailedRun:     44 * time.Second,
		WaitTimeAfterTimeout:       55 * time.Second,
	}
}

type harness struct {
	provider *fakeProvider
	sched    *fakeScheduler
	workload *fakeWorkload
	observer *recordingObserver
	wrapper  *LifecycleWrapper
}

func newHarness(cfg core.QueueJobConfig) *harness {
	h := &harness{
		provider: &fakeProvider{},
		sched:    newFakeScheduler(),
		workload: newFakeWorkload(),
		observer: &recordingObserver{},
	}
	factory := func(*core.QueueJobConfig) (Workload, error) { return h.workload, nil }
	h.wrapper = NewLifecycleWrapper(cfg, h.provider, h.sched, factory, testLogger(), h.observer)
	return h
}

func waitScheduled(t *testing.T, s *fakeScheduler) scheduled {
	t.Helper()
	select {
	case call := <-s.ch:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ScheduleJob")
	}
	return scheduled{}
}

func waitDone(t *testing.T, w *LifecycleWrapper) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Done")
	}
}

func TestLifecycleEmptyQueue(t *testing.T) {
	h := newHarness(testConfig())
	h.provider.empty = true

	if err := h.wrapper.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	call := waitScheduled(t, h.sched)
	if call.name != "reports" || call.delay != 11*time.Second {
		t.Errorf("scheduled %+v, want reports after 11s", call)
	}
	waitDone(t, h.wrapper)
	if started, _, _ := h.workload.counts(); started != 0 {
		t.Error("no job should be started for an empty queue")
	}
	if rec := h.observer.last(t); rec.Outcome != core.OutcomeEmpty {
		t.Errorf("outcome = %q, want %q", rec.Outcome, core.OutcomeEmpty)
	}
}

func TestLifecycleDepthErrorSchedulesNothing(t *testing.T) {
	h := newHarness(testConfig())
	h.provider.err = errors.New("nats down")

	err := h.wrapper.Start(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if h.sched.count() != 0 {
		t.Errorf("scheduled %d triggers, want 0", h.sched.count())
	}
	h.wrapper.Stop()
	if h.sched.count() != 0 {
		t.Error("Stop must not schedule")
	}
}

func TestLifecycleOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		events  []core.WorkloadEvent
		delay   time.Duration
		outcome string
		deleted int
	}{
		{
			name:    "completed",
			events:  []core.WorkloadEvent{{Type: core.EventStarted}, {Type: core.EventCompleted}},
			delay:   22 * time.Second,
			outcome: core.OutcomeCompleted,
		},
		{
			name:    "failed",
			events:  []core.WorkloadEvent{{Type: core.EventStarted}, {Type: core.EventFailed, Reason: "BackoffLimitExceeded"}},
			delay:   44 * time.Second,
			outcome: core.OutcomeFailed,
		},
		{
			name:    "pod error",
			events:  []core.WorkloadEvent{{Type: core.EventError, Reason: "ErrImagePull", Message: "not found"}},
			delay:   33 * time.Second,
			outcome: core.OutcomeError,
			deleted: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(testConfig())
			if err := h.wrapper.Start(context.Background()); err != nil {
				t.Fatalf("Start: %v", err)
			}
			for _, ev := range tt.events {
				h.workload.events <- ev
			}

			call := waitScheduled(t, h.sched)
			if call.delay != tt.delay {
				t.Errorf("delay = %v, want %v", call.delay, tt.delay)
			}
			waitDone(t, h.wrapper)

			started, deleted, shutdowns := h.workload.counts()
			if started != 1 {
				t.Errorf("StartJob called %d times, want 1", started)
			}
			if deleted != tt.deleted {
				t.Errorf("DeleteJob called %d times, want %d", deleted, tt.deleted)
			}
			if shutdowns != 1 {
				t.Errorf("Shutdown called %d times, want 1", shutdowns)
			}
			rec := h.observer.last(t)
			if rec.Outcome != tt.outcome {
				t.Errorf("outcome = %q, want %q", rec.Outcome, tt.outcome)
			}
			if rec.JobName != h.workload.name {
				t.Errorf("job name = %q, want %q", rec.JobName, h.workload.name)
			}
			if rec.NextRunAfter != tt.delay {
				t.Errorf("next run after = %v, want %v", rec.NextRunAfter, tt.delay)
			}
		})
	}
}

func TestLifecycleStartTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.JobStartTimeout = 20 * time.Millisecond
	h := newHarness(cfg)

	if err := h.wrapper.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	call := waitScheduled(t, h.sched)
	if call.delay != 55*time.Second {
		t.Errorf("delay = %v, want 55s", call.delay)
	}
	waitDone(t, h.wrapper)
	if _, deleted, _ := h.workload.counts(); deleted != 1 {
		t.Errorf("stuck job should be deleted once, got %d", deleted)
	}
	if rec := h.observer.last(t); rec.Outcome != core.OutcomeTimeout {
		t.Errorf("outcome = %q, want timeout", rec.Outcome)
	}
}

func TestLifecycleSlowCreateAfterTimeoutDeletesJob(t *testing.T) {
	cfg := testConfig()
	cfg.JobStartTimeout = 10 * time.Millisecond
	h := newHarness(cfg)
	h.workload.delay = 100 * time.Millisecond

	if err := h.wrapper.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, h.wrapper)

	started, deleted, _ := h.workload.counts()
	if started != 1 {
		t.Errorf("StartJob called %d times, want 1", started)
	}
	if deleted != 1 {
		t.Errorf("job created after the timeout deleted %d times, want 1", deleted)
	}
	if n := h.sched.count(); n != 1 {
		t.Errorf("scheduled %d triggers, want 1", n)
	}
	if name := h.wrapper.JobName(); name != "" {
		t.Errorf("JobName = %q, want empty for an abandoned job", name)
	}
	if rec := h.observer.last(t); rec.Outcome != core.OutcomeTimeout {
		t.Errorf("outcome = %q, want timeout", rec.Outcome)
	}
}

func TestLifecycleStartedCancelsTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.JobStartTimeout = 30 * time.Millisecond
	h := newHarness(cfg)

	if err := h.wrapper.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.workload.events <- core.WorkloadEvent{Type: core.EventStarted}

	time.Sleep(100 * time.Millisecond)
	if n := h.sched.count(); n != 0 {
		t.Fatalf("timeout fired after started: %d schedules", n)
	}

	h.workload.events <- core.WorkloadEvent{Type: core.EventCompleted}
	call := waitScheduled(t, h.sched)
	if call.delay != 22*time.Second {
		t.Errorf("delay = %v, want 22s", call.delay)
	}
}

func TestLifecycleStartRejected(t *testing.T) {
	h := newHarness(testConfig())
	h.workload.startErr = errors.New("admission webhook denied")

	if err := h.wrapper.Start(context.Background()); err != nil {
		t.Fatalf("rejected create must not be returned: %v", err)
	}
	call := waitScheduled(t, h.sched)
	if call.delay != 33*time.Second {
		t.Errorf("delay = %v, want 33s", call.delay)
	}
	waitDone(t, h.wrapper)
	if _, deleted, _ := h.workload.counts(); deleted != 0 {
		t.Error("a job that was never created must not be deleted")
	}
	if rec := h.observer.last(t); rec.Outcome != core.OutcomeStartError {
		t.Errorf("outcome = %q, want %q", rec.Outcome, core.OutcomeStartError)
	}
}

func TestLifecycleFactoryError(t *testing.T) {
	sched := newFakeScheduler()
	factory := func(*core.QueueJobConfig) (Workload, error) { return nil, errors.New("bad manifest") }
	w := NewLifecycleWrapper(testConfig(), &fakeProvider{}, sched, factory, testLogger())

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if call := waitScheduled(t, sched); call.delay != 33*time.Second {
		t.Errorf("delay = %v, want 33s", call.delay)
	}
}

func TestLifecycleExactlyOneTrigger(t *testing.T) {
	h := newHarness(testConfig())
	if err := h.wrapper.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.workload.events <- core.WorkloadEvent{Type: core.EventError, Reason: "CrashLoopBackOff"}
	h.workload.events <- core.WorkloadEvent{Type: core.EventCompleted}
	h.workload.events <- core.WorkloadEvent{Type: core.EventFailed}

	waitDone(t, h.wrapper)
	h.wrapper.Stop()
	time.Sleep(20 * time.Millisecond)
	if n := h.sched.count(); n != 1 {
		t.Errorf("scheduled %d triggers, want exactly 1", n)
	}
}

func TestLifecycleStopDoesNotSchedule(t *testing.T) {
	h := newHarness(testConfig())
	if err := h.wrapper.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.wrapper.Stop()
	h.wrapper.Stop()

	waitDone(t, h.wrapper)
	if n := h.sched.count(); n != 0 {
		t.Errorf("scheduled %d triggers after Stop, want 0", n)
	}
	if _, _, shutdowns := h.workload.counts(); shutdowns != 1 {
		t.Errorf("Shutdown called %d times, want 1", shutdowns)
	}
	if rec := h.observer.last(t); rec.Outcome != core.OutcomeStopped {
		t.Errorf("outcome = %q, want stopped", rec.Outcome)
	}
}

func TestLifecycleScheduleErrorIsLogged(t *testing.T) {
	h := newHarness(testConfig())
	h.provider.empty = true
	h.sched.err = errors.New("kv unavailable")

	if err := h.wrapper.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, h.wrapper)
}
