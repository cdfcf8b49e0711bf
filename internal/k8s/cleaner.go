package k8s

import (
	"context"
	"errors"
	"log/slog"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Cleaner deletes finished jobs of this instance once they are older than maxAge.
type Cleaner struct {
	client    kubernetes.Interface
	namespace string
	selector  string
	maxAge    time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewCleaner creates a Cleaner for jobs matching labels.
func NewCleaner(client kubernetes.Interface, namespace string, labels map[string]string, maxAge time.Duration, logger *slog.Logger) *Cleaner {
	c := &Cleaner{
		client:    client,
		namespace: namespace,
		selector:  FlattenLabels(labels),
		maxAge:    maxAge,
		logger:    logger.With("component", "job-cleaner"),
		now:       time.Now,
	}
	c.logger.Info("initialized k8s job cleaner", "namespace", namespace, "max_age", maxAge, "selector", c.selector)
	return c
}

// Clean deletes every expired job. Failures are logged and never returned.
func (c *Cleaner) Clean(ctx context.Context) {
	list, err := c.client.BatchV1().Jobs(c.namespace).List(ctx, metav1.ListOptions{LabelSelector: c.selector})
	if err != nil {
		c.logger.Error("failed to list jobs for cleanup", "namespace", c.namespace, "error", err)
		return
	}

	now := c.now()
	var names []string
	for i := range list.Items {
		if c.expired(&list.Items[i], now) {
			names = append(names, list.Items[i].Name)
		}
	}
	if len(names) == 0 {
		c.logger.Debug("no jobs to clean up", "namespace", c.namespace)
		return
	}
	c.logger.Info("started job cleanup, deleting jobs", "namespace", c.namespace, "jobs_count", len(names), "jobs", names)

	policy := metav1.DeletePropagationBackground
	var errs []error
	for _, name := range names {
		err := c.client.BatchV1().Jobs(c.namespace).Delete(ctx, name, metav1.DeleteOptions{PropagationPolicy: &policy})
		if err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		c.logger.Error("failed to delete one or more jobs", "namespace", c.namespace, "jobs_count", len(names), "jobs", names, "error", err)
	}
}

func (c *Cleaner) expired(job *batchv1.Job, now time.Time) bool {
	for _, cond := range job.Status.Conditions {
		if cond.Status != corev1.ConditionTrue {
			continue
		}
		if cond.Type != batchv1.JobComplete && cond.Type != batchv1.JobFailed {
			continue
		}
		if now.Sub(cond.LastTransitionTime.Time) > c.maxAge {
			return true
		}
	}
	return false
}
