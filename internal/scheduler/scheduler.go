package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openjobspec/ojs-job-chief/internal/core"
)

// DefaultPollInterval is how often HandleJobs looks for a ready trigger.
const DefaultPollInterval = time.Second

// TriggerStore persists at most one pending trigger per queue.
type TriggerStore interface {
	// Create stores tr unless one is already pending for tr.Name and
	// reports whether it was stored.
	Create(ctx context.Context, tr *core.Trigger) (bool, error)
	// FetchReady returns the earliest ready trigger or nil.
	FetchReady(ctx context.Context, now time.Time) (*core.Trigger, error)
	// Complete removes tr; core.ErrTriggerClaimed if someone else did first.
	Complete(ctx context.Context, tr *core.Trigger) error
}

// Handler processes one dispatched trigger.
type Handler func(ctx context.Context, tr *core.Trigger) error

// Scheduler is a deduplicated delayed-trigger primitive. Triggers are
// completed before they are handed to the handler, so each is delivered at
// most once.
type Scheduler struct {
	store    TriggerStore
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a Scheduler polling the store every interval.
func New(store TriggerStore, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Scheduler{
		store:    store,
		logger:   logger.With("component", "scheduler"),
		interval: interval,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
}

// ScheduleJob requests a dispatch of name no earlier than startAfter from
// now. If a trigger for name is already pending it is kept and the returned
// ID is empty.
func (s *Scheduler) ScheduleJob(ctx context.Context, name string, startAfter time.Duration) (string, error) {
	now := s.now()
	tr := &core.Trigger{
		ID:        core.NewUUIDv7(),
		Name:      name,
		NotBefore: now.Add(startAfter),
		CreatedAt: now,
	}

	created, err := s.store.Create(ctx, tr)
	if err != nil {
		return "", fmt.Errorf("schedule %s: %w", name, err)
	}
	if !created {
		s.logger.Debug("trigger already pending, keeping it", "queue", name)
		return "", nil
	}
	s.logger.Debug("trigger scheduled", "queue", name, "id", tr.ID, "start_after", startAfter)
	return tr.ID, nil
}

// HandleJobs dispatches ready triggers to handler, one per poll, until ctx
// is cancelled or Stop is called; both end with context.Canceled. Any
// backend or handler error ends the loop and is returned.
func (s *Scheduler) HandleJobs(ctx context.Context, handler Handler) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.poll(ctx, handler); err != nil {
			if ctx.Err() != nil {
				return context.Canceled
			}
			return err
		}

		select {
		case <-ctx.Done():
			return context.Canceled
		case <-s.stop:
			return context.Canceled
		case <-ticker.C:
		}
	}
}

// Stop ends HandleJobs. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

func (s *Scheduler) poll(ctx context.Context, handler Handler) error {
	tr, err := s.store.FetchReady(ctx, s.now())
	if err != nil {
		return fmt.Errorf("fetch trigger: %w", err)
	}
	if tr == nil {
		return nil
	}

	if err := s.store.Complete(ctx, tr); err != nil {
		if errors.Is(err, core.ErrTriggerClaimed) {
			s.logger.Debug("trigger claimed by another dispatcher", "queue", tr.Name, "id", tr.ID)
			return nil
		}
		return fmt.Errorf("complete trigger %s: %w", tr.ID, err)
	}

	s.logger.Debug("dispatching trigger", "queue", tr.Name, "id", tr.ID)
	if err := handler(ctx, tr); err != nil {
		return fmt.Errorf("handle trigger for %s: %w", tr.Name, err)
	}
	return nil
}
