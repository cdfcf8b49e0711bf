package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/openjobspec/ojs-job-chief/internal/core"
)

// Run is one in-flight run cycle, normally a *LifecycleWrapper.
type Run interface {
	Start(ctx context.Context) error
	Stop()
	Done() <-chan struct{}
	Finishing() bool
	JobName() string
}

// RunFactory creates the run for a dispatched queue.
type RunFactory func(cfg core.QueueJobConfig) Run

// NewRunFactory returns a RunFactory building LifecycleWrappers.
func NewRunFactory(provider QueueProvider, sched JobScheduler, newWorkload WorkloadFactory, logger *slog.Logger, observers ...RunObserver) RunFactory {
	return func(cfg core.QueueJobConfig) Run {
		return NewLifecycleWrapper(cfg, provider, sched, newWorkload, logger, observers...)
	}
}

// JobsManager owns the queue configs, seeds one trigger per queue and
// turns each dispatched trigger into a run.
type JobsManager struct {
	configs map[string]core.QueueJobConfig
	loop    TriggerLoop
	newRun  RunFactory
	logger  *slog.Logger

	mu   sync.Mutex
	runs map[string]Run
}

// New creates a JobsManager. Later configs with a duplicate queue name
// replace earlier ones.
func New(configs []core.QueueJobConfig, loop TriggerLoop, newRun RunFactory, logger *slog.Logger) *JobsManager {
	m := &JobsManager{
		configs: make(map[string]core.QueueJobConfig, len(configs)),
		loop:    loop,
		newRun:  newRun,
		logger:  logger.With("component", "jobs-manager"),
		runs:    make(map[string]Run),
	}
	for _, cfg := range configs {
		m.configs[cfg.QueueName] = cfg
	}
	return m
}

// Queues returns the configured queue names in sorted order.
func (m *JobsManager) Queues() []string {
	names := make([]string, 0, len(m.configs))
	for name := range m.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Config returns the config for queue.
func (m *JobsManager) Config(queue string) (core.QueueJobConfig, bool) {
	cfg, ok := m.configs[queue]
	return cfg, ok
}

// Start seeds an immediate trigger for every queue and blocks dispatching
// triggers until ctx is cancelled, Stop is called or a run fails fatally.
// Cancellation returns context.Canceled.
func (m *JobsManager) Start(ctx context.Context) error {
	for _, name := range m.Queues() {
		if _, err := m.loop.ScheduleJob(ctx, name, 0); err != nil {
			return fmt.Errorf("seed trigger: %w", err)
		}
	}
	m.logger.Info("jobs manager started", "queues", len(m.configs))
	return m.loop.HandleJobs(ctx, m.dispatch)
}

// Stop ends dispatching and stops every active run concurrently.
func (m *JobsManager) Stop() {
	m.loop.Stop()

	m.mu.Lock()
	runs := make([]Run, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, r)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, r := range runs {
		wg.Add(1)
		go func(r Run) {
			defer wg.Done()
			r.Stop()
		}(r)
	}
	wg.Wait()
	m.logger.Info("jobs manager stopped", "stopped_runs", len(runs))
}

// ActiveRuns maps each queue with a run in flight to its job name.
func (m *JobsManager) ActiveRuns() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.runs))
	for name, r := range m.runs {
		select {
		case <-r.Done():
			continue
		default:
		}
		out[name] = r.JobName()
	}
	return out
}

// Trigger schedules an evaluation of queue after startAfter. A pending
// trigger for the queue is kept and the returned ID is empty.
func (m *JobsManager) Trigger(ctx context.Context, queue string, startAfter time.Duration) (string, error) {
	if _, ok := m.configs[queue]; !ok {
		return "", fmt.Errorf("queue %s: %w", queue, core.ErrUnknownQueue)
	}
	return m.loop.ScheduleJob(ctx, queue, startAfter)
}

func (m *JobsManager) dispatch(ctx context.Context, tr *core.Trigger) error {
	cfg, ok := m.configs[tr.Name]
	if !ok {
		m.logger.Error("trigger for unknown queue", "queue", tr.Name)
		return fmt.Errorf("job %s not found: %w", tr.Name, core.ErrUnknownQueue)
	}

	m.mu.Lock()
	prev, active := m.runs[tr.Name]
	m.mu.Unlock()
	if active {
		select {
		case <-prev.Done():
		default:
			if !prev.Finishing() {
				m.logger.Warn("run already active, dropping trigger", "queue", tr.Name, "trigger", tr.ID)
				return nil
			}
			// The previous run scheduled this trigger and is about to close.
			select {
			case <-prev.Done():
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	run := m.newRun(cfg)
	m.mu.Lock()
	m.runs[tr.Name] = run
	m.mu.Unlock()
	go m.release(tr.Name, run)

	if err := run.Start(ctx); err != nil {
		run.Stop()
		return err
	}
	return nil
}

func (m *JobsManager) release(name string, run Run) {
	<-run.Done()
	m.mu.Lock()
	if m.runs[name] == run {
		delete(m.runs, name)
	}
	m.mu.Unlock()
}
