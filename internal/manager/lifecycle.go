package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openjobspec/ojs-job-chief/internal/core"
)

// sideEffectTimeout bounds the cleanup calls made after a run has ended.
// These calls use a background context.
const sideEffectTimeout = 10 * time.Second

// LifecycleWrapper drives one run cycle of a queue: check for work, start a
// workload, wait for its outcome and schedule the next trigger exactly once.
type LifecycleWrapper struct {
	cfg         core.QueueJobConfig
	provider    QueueProvider
	scheduler   JobScheduler
	newWorkload WorkloadFactory
	observers   []RunObserver
	logger      *slog.Logger
	now         func() time.Time

	mu        sync.Mutex
	workload  Workload
	jobName   string
	startedAt time.Time
	timer     *time.Timer
	finishing bool
	quit      chan struct{}
	done      chan struct{}
	settled   chan struct{}
}

// NewLifecycleWrapper creates an idle wrapper for cfg.
func NewLifecycleWrapper(cfg core.QueueJobConfig, provider QueueProvider, sched JobScheduler, newWorkload WorkloadFactory, logger *slog.Logger, observers ...RunObserver) *LifecycleWrapper {
	return &LifecycleWrapper{
		cfg:         cfg,
		provider:    provider,
		scheduler:   sched,
		newWorkload: newWorkload,
		observers:   observers,
		logger:      logger.With("queue", cfg.QueueName),
		now:         time.Now,
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		settled:     make(chan struct{}),
	}
}

// Queue returns the queue this wrapper runs.
func (w *LifecycleWrapper) Queue() string {
	return w.cfg.QueueName
}

// JobName returns the cluster name of the current job, empty before it is
// created.
func (w *LifecycleWrapper) JobName() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.jobName
}

// Done is closed once the next trigger has been scheduled, or when the
// wrapper is stopped.
func (w *LifecycleWrapper) Done() <-chan struct{} {
	return w.done
}

// Finishing reports whether the run has reached an outcome. A finishing
// wrapper closes Done shortly without waiting on the cluster.
func (w *LifecycleWrapper) Finishing() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finishing
}

// Start evaluates the queue and, if it has work, starts a workload. An
// error is returned only when the queue depth cannot be read; in that case
// nothing is scheduled. Every other path schedules exactly one trigger.
func (w *LifecycleWrapper) Start(ctx context.Context) error {
	w.mu.Lock()
	w.startedAt = w.now()
	w.mu.Unlock()

	empty, err := w.provider.IsQueueEmpty(ctx, w.cfg.QueueName)
	if err != nil {
		w.logger.Error("failed to read queue depth", "error", err)
		return fmt.Errorf("check queue %s: %w", w.cfg.QueueName, err)
	}
	if empty {
		w.logger.Debug("queue is empty")
		w.finish(outcome{kind: core.OutcomeEmpty}, w.cfg.QueueCheckInterval)
		return nil
	}

	wl, err := w.newWorkload(&w.cfg)
	if err != nil {
		w.logger.Error("failed to build workload", "error", err)
		w.finish(outcome{kind: core.OutcomeStartError, message: err.Error()}, w.cfg.WaitTimeAfterError)
		return nil
	}

	w.mu.Lock()
	if w.finishing {
		w.mu.Unlock()
		if err := wl.Shutdown(); err != nil {
			w.logger.Warn("failed to shut down unused workload", "error", err)
		}
		return nil
	}
	w.workload = wl
	w.timer = time.NewTimer(w.cfg.JobStartTimeout)
	timeout := w.timer.C
	w.mu.Unlock()

	go w.supervise(wl.Events(), timeout)

	name, err := wl.StartJob(ctx)
	if err != nil {
		w.logger.Error("failed to start job", "error", err)
		w.finish(outcome{kind: core.OutcomeStartError, message: err.Error()}, w.cfg.WaitTimeAfterError)
		return nil
	}

	w.mu.Lock()
	if w.finishing {
		w.mu.Unlock()
		// The run ended while the create call was in flight.
		w.logger.Warn("job created after run ended, deleting it", "job", name)
		delCtx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		if err := wl.DeleteJob(delCtx); err != nil {
			w.logger.Warn("failed to delete orphaned job", "job", name, "error", err)
		}
		return nil
	}
	w.jobName = name
	w.mu.Unlock()
	w.logger.Info("job created", "job", name)
	return nil
}

// Stop abandons the run without scheduling a trigger and waits for any
// in-flight outcome handling to settle. Safe to call more than once.
func (w *LifecycleWrapper) Stop() {
	w.finishWith(outcome{kind: core.OutcomeStopped}, 0, false)
	<-w.settled
}

type outcome struct {
	kind    string
	reason  string
	message string
}

func (w *LifecycleWrapper) supervise(events <-chan core.WorkloadEvent, timeout <-chan time.Time) {
	for {
		select {
		case <-w.quit:
			return
		case <-timeout:
			w.logger.Warn("job did not start in time", "timeout", w.cfg.JobStartTimeout)
			w.finish(outcome{kind: core.OutcomeTimeout}, w.cfg.WaitTimeAfterTimeout)
			return
		case ev := <-events:
			switch ev.Type {
			case core.EventStarted:
				w.mu.Lock()
				if w.timer != nil {
					w.timer.Stop()
				}
				w.mu.Unlock()
				timeout = nil
				w.logger.Info("job started", "job", w.JobName())
			case core.EventCompleted:
				w.logger.Info("job completed", "job", w.JobName())
				w.finish(outcome{kind: core.OutcomeCompleted}, w.cfg.WaitTimeAfterSuccessfulRun)
				return
			case core.EventFailed:
				w.logger.Warn("job failed", "job", w.JobName(), "reason", ev.Reason)
				w.finish(outcome{kind: core.OutcomeFailed, reason: ev.Reason, message: ev.Message}, w.cfg.WaitTimeAfterFailedRun)
				return
			case core.EventError:
				w.logger.Error("job pod error", "job", w.JobName(), "reason", ev.Reason, "message", ev.Message)
				w.finish(outcome{kind: core.OutcomeError, reason: ev.Reason, message: ev.Message}, w.cfg.WaitTimeAfterError)
				return
			}
		}
	}
}

func (w *LifecycleWrapper) finish(o outcome, delay time.Duration) {
	w.finishWith(o, delay, true)
}

// finishWith runs at most once per wrapper. Order: release the workload,
// schedule the next trigger, notify observers, close Done.
func (w *LifecycleWrapper) finishWith(o outcome, delay time.Duration, schedule bool) {
	w.mu.Lock()
	if w.finishing {
		w.mu.Unlock()
		return
	}
	w.finishing = true
	wl := w.workload
	w.workload = nil
	if w.timer != nil {
		w.timer.Stop()
	}
	name := w.jobName
	startedAt := w.startedAt
	close(w.quit)
	w.mu.Unlock()

	defer close(w.settled)

	if wl != nil {
		// Stuck or never-started jobs are removed before the next run.
		if name != "" && (o.kind == core.OutcomeTimeout || o.kind == core.OutcomeError) {
			ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
			if err := wl.DeleteJob(ctx); err != nil {
				w.logger.Warn("failed to delete stuck job", "job", name, "error", err)
			}
			cancel()
		}
		if err := wl.Shutdown(); err != nil {
			w.logger.Warn("failed to shut down workload", "job", name, "error", err)
		}
	}

	if schedule {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		if _, err := w.scheduler.ScheduleJob(ctx, w.cfg.QueueName, delay); err != nil {
			w.logger.Error("failed to schedule next run", "delay", delay, "error", err)
		}
		cancel()
	}
	if !startedAt.IsZero() {
		w.notify(o, name, startedAt, delay, schedule)
	}
	close(w.done)
}

func (w *LifecycleWrapper) notify(o outcome, name string, startedAt time.Time, delay time.Duration, scheduled bool) {
	rec := core.RunRecord{
		ID:         core.NewUUIDv7(),
		Queue:      w.cfg.QueueName,
		JobName:    name,
		Outcome:    o.kind,
		Reason:     o.reason,
		Message:    o.message,
		StartedAt:  startedAt,
		FinishedAt: w.now(),
	}
	if scheduled {
		rec.NextRunAfter = delay
	}
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()
	for _, obs := range w.observers {
		if err := obs.RunFinished(ctx, rec); err != nil {
			w.logger.Warn("run observer failed", "outcome", o.kind, "error", err)
		}
	}
}
