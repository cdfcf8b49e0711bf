package k8s

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"

	"github.com/openjobspec/ojs-job-chief/internal/core"
)

// JobDeletedReason is the failure reason reported when the job disappears
// without this instance deleting it.
const JobDeletedReason = "Job deleted"

const unknownValue = "unknown"

// Job is one Kubernetes Job created for one run of a queue. It translates
// Job and Pod watch events into lifecycle events. A Job is single-use.
type Job struct {
	client    kubernetes.Interface
	jobs      JobInformer
	pods      PodWatcherFactory
	spec      *batchv1.Job
	namespace string
	queue     string
	logger    *slog.Logger

	events chan core.WorkloadEvent
	done   chan struct{}

	mu             sync.Mutex
	attempted      bool
	name           string
	emittedStarted bool
	finished       bool
	deleteSeen     bool
	deleted        bool
	closed         bool
	updateReg      cache.ResourceEventHandlerRegistration
	deleteReg      cache.ResourceEventHandlerRegistration
	podStop        chan struct{}

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewJob subscribes a new workload to the shared Job informer.
func NewJob(client kubernetes.Interface, jobs JobInformer, pods PodWatcherFactory, spec *batchv1.Job, queue string, logger *slog.Logger) (*Job, error) {
	j := &Job{
		client:    client,
		jobs:      jobs,
		pods:      pods,
		spec:      spec,
		namespace: spec.Namespace,
		queue:     queue,
		logger:    logger.With("component", "k8s-job", "queue", queue),
		events:    make(chan core.WorkloadEvent, 8),
		done:      make(chan struct{}),
	}

	var err error
	j.updateReg, err = jobs.AddEventHandler(cache.ResourceEventHandlerFuncs{
		UpdateFunc: j.handleJobUpdate,
	})
	if err != nil {
		return nil, fmt.Errorf("watch job updates: %w", err)
	}
	j.deleteReg, err = jobs.AddEventHandler(cache.ResourceEventHandlerFuncs{
		DeleteFunc: j.handleJobDelete,
	})
	if err != nil {
		_ = jobs.RemoveEventHandler(j.updateReg)
		return nil, fmt.Errorf("watch job deletes: %w", err)
	}
	return j, nil
}

// Events delivers lifecycle events until Shutdown.
func (j *Job) Events() <-chan core.WorkloadEvent {
	return j.events
}

// Name returns the name assigned by the API server, empty before a
// successful StartJob.
func (j *Job) Name() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.name
}

// StartJob creates the Job and starts watching its pods. It can be called
// once; a second call fails with core.ErrJobAlreadyStarted even if the
// first one was rejected.
func (j *Job) StartJob(ctx context.Context) (string, error) {
	j.mu.Lock()
	if j.attempted {
		j.mu.Unlock()
		return "", core.ErrJobAlreadyStarted
	}
	j.attempted = true
	j.mu.Unlock()

	created, err := j.client.BatchV1().Jobs(j.namespace).Create(ctx, j.spec.DeepCopy(), metav1.CreateOptions{})
	if err != nil {
		j.logger.Debug("create job request failed", "error", err)
		return "", fmt.Errorf("create job for queue %s: %w", j.queue, err)
	}
	name := created.Name

	j.mu.Lock()
	defer j.mu.Unlock()
	j.name = name
	if j.closed {
		return name, nil
	}

	watcher := j.pods(j.namespace, name)
	if _, err := watcher.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc:    j.handlePod,
		UpdateFunc: func(_, obj any) { j.handlePod(obj) },
	}); err != nil {
		j.logger.Warn("failed to watch job pods", "job", name, "error", err)
		return name, nil
	}
	j.podStop = make(chan struct{})
	go watcher.Run(j.podStop)

	return name, nil
}

// DeleteJob deletes the Job with background propagation. The deletion
// event it causes is not reported as a failure.
func (j *Job) DeleteJob(ctx context.Context) error {
	j.mu.Lock()
	name := j.name
	if name == "" {
		j.mu.Unlock()
		return core.ErrJobNotStarted
	}
	j.deleted = true
	j.mu.Unlock()

	policy := metav1.DeletePropagationBackground
	err := j.client.BatchV1().Jobs(j.namespace).Delete(ctx, name, metav1.DeleteOptions{PropagationPolicy: &policy})
	if err != nil {
		j.mu.Lock()
		j.deleted = false
		j.mu.Unlock()
		j.logger.Debug("delete job request failed", "job", name, "error", err)
		return fmt.Errorf("delete job %s: %w", name, err)
	}
	return nil
}

// Shutdown detaches the watch handlers and stops the pod watch. Events
// emitted afterwards are dropped. Safe to call more than once.
func (j *Job) Shutdown() error {
	j.shutdownOnce.Do(func() {
		j.mu.Lock()
		j.closed = true
		if j.podStop != nil {
			close(j.podStop)
		}
		close(j.done)
		j.mu.Unlock()

		var errs []error
		if err := j.jobs.RemoveEventHandler(j.updateReg); err != nil {
			errs = append(errs, err)
		}
		if err := j.jobs.RemoveEventHandler(j.deleteReg); err != nil {
			errs = append(errs, err)
		}
		j.shutdownErr = errors.Join(errs...)
	})
	return j.shutdownErr
}

func (j *Job) emit(ev core.WorkloadEvent) {
	select {
	case <-j.done:
		return
	default:
	}
	select {
	case j.events <- ev:
	case <-j.done:
	}
}

func (j *Job) handlePod(obj any) {
	pod, ok := obj.(*corev1.Pod)
	if !ok {
		return
	}

	switch pod.Status.Phase {
	case corev1.PodPending:
		if len(pod.Status.ContainerStatuses) == 0 {
			return
		}
		waiting := pod.Status.ContainerStatuses[0].State.Waiting
		if waiting == nil {
			return
		}
		if waiting.Reason == "CrashLoopBackOff" || strings.HasPrefix(waiting.Reason, "Err") {
			j.emit(core.WorkloadEvent{
				Type:    core.EventError,
				Reason:  orUnknown(waiting.Reason),
				Message: orUnknown(waiting.Message),
			})
		}
	case corev1.PodRunning:
		j.mu.Lock()
		first := !j.emittedStarted
		j.emittedStarted = true
		j.mu.Unlock()
		if first {
			j.emit(core.WorkloadEvent{Type: core.EventStarted})
		}
	}
}

func (j *Job) handleJobUpdate(_, obj any) {
	job, ok := obj.(*batchv1.Job)
	if !ok {
		return
	}

	j.mu.Lock()
	if j.name == "" || job.Name != j.name || j.finished {
		j.mu.Unlock()
		return
	}
	ev, terminal := terminalEvent(job)
	if !terminal {
		j.mu.Unlock()
		return
	}
	j.finished = true
	j.mu.Unlock()

	j.emit(ev)
	if err := j.jobs.RemoveEventHandler(j.updateReg); err != nil {
		j.logger.Debug("failed to detach job update handler", "error", err)
	}
}

func (j *Job) handleJobDelete(obj any) {
	if tombstone, ok := obj.(cache.DeletedFinalStateUnknown); ok {
		obj = tombstone.Obj
	}
	job, ok := obj.(*batchv1.Job)
	if !ok {
		return
	}

	j.mu.Lock()
	if j.deleted || j.deleteSeen || j.name == "" || job.Name != j.name {
		j.mu.Unlock()
		return
	}
	j.deleteSeen = true
	j.mu.Unlock()

	j.emit(core.WorkloadEvent{Type: core.EventFailed, Reason: JobDeletedReason})
	if err := j.jobs.RemoveEventHandler(j.deleteReg); err != nil {
		j.logger.Debug("failed to detach job delete handler", "error", err)
	}
}

// terminalEvent maps the first True Complete or Failed condition of a job.
// Every condition is scanned because clusters from 1.31 on list
// FailureTarget or SuccessCriteriaMet ahead of the terminal one.
func terminalEvent(job *batchv1.Job) (core.WorkloadEvent, bool) {
	for _, c := range job.Status.Conditions {
		if c.Status != corev1.ConditionTrue {
			continue
		}
		switch c.Type {
		case batchv1.JobComplete:
			return core.WorkloadEvent{Type: core.EventCompleted}, true
		case batchv1.JobFailed:
			return core.WorkloadEvent{Type: core.EventFailed, Reason: c.Reason, Message: c.Message}, true
		}
	}
	return core.WorkloadEvent{}, false
}

func orUnknown(s string) string {
	if s == "" {
		return unknownValue
	}
	return s
}
