package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Cleaner removes expired workloads. Failures are handled by the cleaner.
type Cleaner interface {
	Clean(ctx context.Context)
}

// Reaper runs a Cleaner on a fixed interval. A run still in progress when
// the next one is due causes that next run to be skipped.
type Reaper struct {
	cron    *cron.Cron
	cleaner Cleaner
	logger  *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// NewReaper schedules cleaner every interval. Intervals below one second
// are rounded up by the cron library.
func NewReaper(cleaner Cleaner, interval time.Duration, logger *slog.Logger) (*Reaper, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("reaper interval must be positive, got %s", interval)
	}
	logger = logger.With("component", "reaper")

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))
	ctx, cancel := context.WithCancel(context.Background())
	r := &Reaper{
		cron:    cron.New(cron.WithLogger(cronLogger), cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		cleaner: cleaner,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	if _, err := r.cron.AddFunc("@every "+interval.String(), r.RunOnce); err != nil {
		cancel()
		return nil, fmt.Errorf("schedule reaper: %w", err)
	}
	return r, nil
}

// Start begins the schedule in the background.
func (r *Reaper) Start() {
	r.cron.Start()
	r.logger.Info("reaper started", "entries", len(r.cron.Entries()))
}

// RunOnce runs the cleaner immediately.
func (r *Reaper) RunOnce() {
	r.cleaner.Clean(r.ctx)
}

// Stop cancels a running clean and waits for it to return. Safe to call
// more than once.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() {
		done := r.cron.Stop()
		r.cancel()
		<-done.Done()
	})
}

// Cleaners runs several cleaners in order as one.
type Cleaners []Cleaner

// Clean runs every cleaner.
func (cs Cleaners) Clean(ctx context.Context) {
	for _, c := range cs {
		c.Clean(ctx)
	}
}
