package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingCleaner struct {
	calls atomic.Int32
	ran   chan struct{}
}

func (c *countingCleaner) Clean(ctx context.Context) {
	if c.calls.Add(1) == 1 && c.ran != nil {
		close(c.ran)
	}
}

func TestNewReaper_RejectsNonPositiveInterval(t *testing.T) {
	if _, err := NewReaper(&countingCleaner{}, 0, testLogger()); err == nil {
		t.Fatal("NewReaper(0) expected error")
	}
}

func TestReaper_RunOnce(t *testing.T) {
	c := &countingCleaner{}
	r, err := NewReaper(c, time.Hour, testLogger())
	if err != nil {
		t.Fatalf("NewReaper() error = %v", err)
	}
	r.RunOnce()
	if c.calls.Load() != 1 {
		t.Errorf("Clean calls = %d, want 1", c.calls.Load())
	}
}

func TestReaper_RunsOnSchedule(t *testing.T) {
	c := &countingCleaner{ran: make(chan struct{})}
	r, err := NewReaper(c, time.Second, testLogger())
	if err != nil {
		t.Fatalf("NewReaper() error = %v", err)
	}
	r.Start()
	defer r.Stop()

	select {
	case <-c.ran:
	case <-time.After(3 * time.Second):
		t.Fatal("cleaner did not run on schedule")
	}
}

func TestReaper_StopIdempotent(t *testing.T) {
	r, err := NewReaper(&countingCleaner{}, time.Hour, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	r.Start()
	r.Stop()

	defer func() {
		if rec := recover(); rec != nil {
			t.Fatalf("Stop should be idempotent, panicked on second call: %v", rec)
		}
	}()
	r.Stop()
}

func TestCleaners_RunsAll(t *testing.T) {
	a, b := &countingCleaner{}, &countingCleaner{}
	Cleaners{a, b}.Clean(context.Background())
	if a.calls.Load() != 1 || b.calls.Load() != 1 {
		t.Errorf("calls = %d, %d, want 1, 1", a.calls.Load(), b.calls.Load())
	}
}
