package k8s

import (
	"log/slog"

	"k8s.io/client-go/kubernetes"

	"github.com/openjobspec/ojs-job-chief/internal/core"
)

// JobFactory builds a fresh Job for each run of a queue.
type JobFactory struct {
	client kubernetes.Interface
	jobs   JobInformer
	pods   PodWatcherFactory
	opts   ManifestOptions
	logger *slog.Logger
}

// NewJobFactory creates a JobFactory.
func NewJobFactory(client kubernetes.Interface, jobs JobInformer, pods PodWatcherFactory, opts ManifestOptions, logger *slog.Logger) *JobFactory {
	return &JobFactory{
		client: client,
		jobs:   jobs,
		pods:   pods,
		opts:   opts,
		logger: logger,
	}
}

// NewJob builds the manifest of cfg and subscribes a new Job to the informer.
func (f *JobFactory) NewJob(cfg *core.QueueJobConfig) (*Job, error) {
	spec, err := NewJobSpec(f.opts, cfg)
	if err != nil {
		return nil, err
	}
	return NewJob(f.client, f.jobs, f.pods, spec, cfg.QueueName, f.logger)
}
