package manager

import (
	"context"
	"time"

	"github.com/openjobspec/ojs-job-chief/internal/core"
	"github.com/openjobspec/ojs-job-chief/internal/scheduler"
)

// QueueProvider answers whether a queue has pending work.
type QueueProvider interface {
	IsQueueEmpty(ctx context.Context, name string) (bool, error)
}

// JobScheduler enqueues deduplicated delayed triggers.
type JobScheduler interface {
	ScheduleJob(ctx context.Context, name string, startAfter time.Duration) (string, error)
}

// TriggerLoop is the scheduler surface the JobsManager drives.
type TriggerLoop interface {
	JobScheduler
	HandleJobs(ctx context.Context, handler scheduler.Handler) error
	Stop()
}

// Workload is one cluster job owned by a single run cycle.
type Workload interface {
	StartJob(ctx context.Context) (string, error)
	DeleteJob(ctx context.Context) error
	Shutdown() error
	Events() <-chan core.WorkloadEvent
}

// WorkloadFactory builds an unstarted Workload for a queue.
type WorkloadFactory func(cfg *core.QueueJobConfig) (Workload, error)

// RunObserver is told about every finished run cycle.
type RunObserver interface {
	RunFinished(ctx context.Context, rec core.RunRecord) error
}

// RunObserverFunc adapts a function to RunObserver.
type RunObserverFunc func(ctx context.Context, rec core.RunRecord) error

// RunFinished calls f.
func (f RunObserverFunc) RunFinished(ctx context.Context, rec core.RunRecord) error {
	return f(ctx, rec)
}
