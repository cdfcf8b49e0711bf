package core

import (
	"errors"
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/apimachinery/pkg/util/validation"
)

// ValidateQueueConfigs checks a full queue set. All problems are reported,
// joined, and each wraps ErrInvalidConfig.
func ValidateQueueConfigs(cfgs []QueueJobConfig) error {
	if len(cfgs) == 0 {
		return fmt.Errorf("%w: at least one queue is required", ErrInvalidConfig)
	}

	var errs []error
	seen := make(map[string]bool, len(cfgs))
	for i := range cfgs {
		cfg := &cfgs[i]
		if cfg.QueueName != "" {
			if seen[cfg.QueueName] {
				errs = append(errs, configError(cfg.QueueName, "queueName", "duplicate queue name"))
			}
			seen[cfg.QueueName] = true
		}
		errs = append(errs, ValidateQueueConfig(cfg)...)
	}
	return errors.Join(errs...)
}

// ValidateQueueConfig returns the problems of a single queue config.
func ValidateQueueConfig(cfg *QueueJobConfig) []error {
	var errs []error
	add := func(field, msg string) {
		errs = append(errs, configError(cfg.QueueName, field, msg))
	}

	if cfg.QueueName == "" {
		add("queueName", "must not be empty")
	} else if msgs := validation.IsDNS1123Label(cfg.QueueName); len(msgs) > 0 {
		add("queueName", strings.Join(msgs, "; "))
	}

	durations := []struct {
		field string
		value int64
	}{
		{"queueCheckInterval", int64(cfg.QueueCheckInterval)},
		{"jobStartTimeout", int64(cfg.JobStartTimeout)},
		{"waitTimeAfterSuccessfulRun", int64(cfg.WaitTimeAfterSuccessfulRun)},
		{"waitTimeAfterError", int64(cfg.WaitTimeAfterError)},
		{"waitTimeAfterFailedRun", int64(cfg.WaitTimeAfterFailedRun)},
		{"waitTimeAfterTimeout", int64(cfg.WaitTimeAfterTimeout)},
	}
	for _, d := range durations {
		if d.value <= 0 {
			add(d.field, "must be a positive duration")
		}
	}

	pod := &cfg.PodConfig
	if pod.Parallelism < MinParallelism || pod.Parallelism > MaxParallelism {
		add("podConfig.parallelism", fmt.Sprintf("must be between %d and %d", MinParallelism, MaxParallelism))
	}
	if pod.Image == "" {
		add("podConfig.image", "must not be empty")
	}
	switch pod.PullPolicy {
	case PullAlways, PullIfNotPresent, PullNever:
	default:
		add("podConfig.pullPolicy", fmt.Sprintf("must be one of %s, %s, %s", PullAlways, PullIfNotPresent, PullNever))
	}
	for _, env := range pod.Env {
		if env.Name == "" {
			add("podConfig.env", "variable name must not be empty")
		}
	}
	if r := pod.Resources; r != nil {
		quantities := map[string]string{
			"podConfig.resources.limits.cpu":      r.Limits.CPU,
			"podConfig.resources.limits.memory":   r.Limits.Memory,
			"podConfig.resources.requests.cpu":    r.Requests.CPU,
			"podConfig.resources.requests.memory": r.Requests.Memory,
		}
		for field, q := range quantities {
			if q == "" {
				continue
			}
			if _, err := resource.ParseQuantity(q); err != nil {
				add(field, fmt.Sprintf("invalid quantity %q", q))
			}
		}
	}
	if l := pod.Liveness; l != nil && l.Enabled {
		if l.Port <= 0 || l.Port > 65535 {
			add("podConfig.liveness.port", "must be a valid port")
		}
		if !strings.HasPrefix(l.Path, "/") {
			add("podConfig.liveness.path", "must start with /")
		}
	}
	return errs
}

func configError(queue, field, msg string) error {
	if queue == "" {
		return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, field, msg)
	}
	return fmt.Errorf("%w: queue %s: %s: %s", ErrInvalidConfig, queue, field, msg)
}
