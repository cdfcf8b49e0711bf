package server

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openjobspec/ojs-job-chief/internal/core"
)

// queueFile is the YAML layout of the queue configuration file.
type queueFile struct {
	Defaults timings     `yaml:"defaults"`
	Queues   []queueYAML `yaml:"queues"`
}

type timings struct {
	QueueCheckInterval         string `yaml:"queueCheckInterval"`
	JobStartTimeout            string `yaml:"jobStartTimeout"`
	WaitTimeAfterSuccessfulRun string `yaml:"waitTimeAfterSuccessfulRun"`
	WaitTimeAfterError         string `yaml:"waitTimeAfterError"`
	WaitTimeAfterFailedRun     string `yaml:"waitTimeAfterFailedRun"`
	WaitTimeAfterTimeout       string `yaml:"waitTimeAfterTimeout"`
}

type queueYAML struct {
	QueueName string   `yaml:"queueName"`
	PodConfig podYAML  `yaml:"podConfig"`
	timings   `yaml:",inline"`
}

type podYAML struct {
	Parallelism         *int32                     `yaml:"parallelism"`
	Image               string                     `yaml:"image"`
	Command             []string                   `yaml:"command"`
	Args                []string                   `yaml:"args"`
	Environment         map[string]string          `yaml:"environment"`
	Configmaps          []string                   `yaml:"configmaps"`
	Secrets             []string                   `yaml:"secrets"`
	Resources           *core.ResourceRequirements `yaml:"resources"`
	PullPolicy          string                     `yaml:"pullPolicy"`
	Liveness            *core.LivenessProbe        `yaml:"liveness"`
	InjectBackendConfig bool                       `yaml:"injectBackendConfig"`
}

// LoadQueueConfigs reads and validates the queue file at path.
func LoadQueueConfigs(path string) ([]core.QueueJobConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read queue file: %w", err)
	}
	return ParseQueueConfigs(data)
}

// ParseQueueConfigs decodes a queue file. Timings a queue omits come from
// the defaults block. The result is validated as a whole.
func ParseQueueConfigs(data []byte) ([]core.QueueJobConfig, error) {
	var f queueFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse queue file: %v", core.ErrInvalidConfig, err)
	}

	cfgs := make([]core.QueueJobConfig, 0, len(f.Queues))
	for _, q := range f.Queues {
		cfg, err := q.toConfig(f.Defaults)
		if err != nil {
			return nil, err
		}
		cfgs = append(cfgs, cfg)
	}
	if err := core.ValidateQueueConfigs(cfgs); err != nil {
		return nil, err
	}
	return cfgs, nil
}

func (q queueYAML) toConfig(defaults timings) (core.QueueJobConfig, error) {
	cfg := core.QueueJobConfig{
		QueueName: q.QueueName,
		PodConfig: core.PodTemplate{
			Parallelism:         core.MinParallelism,
			Image:               q.PodConfig.Image,
			Command:             q.PodConfig.Command,
			Args:                q.PodConfig.Args,
			Env:                 envList(q.PodConfig.Environment),
			Configmaps:          q.PodConfig.Configmaps,
			Secrets:             q.PodConfig.Secrets,
			Resources:           q.PodConfig.Resources,
			PullPolicy:          q.PodConfig.PullPolicy,
			Liveness:            q.PodConfig.Liveness,
			InjectBackendConfig: q.PodConfig.InjectBackendConfig,
		},
	}
	if q.PodConfig.Parallelism != nil {
		cfg.PodConfig.Parallelism = *q.PodConfig.Parallelism
	}
	if cfg.PodConfig.PullPolicy == "" {
		cfg.PodConfig.PullPolicy = core.PullIfNotPresent
	}

	fields := []struct {
		name     string
		value    string
		fallback string
		dst      *time.Duration
	}{
		{"queueCheckInterval", q.QueueCheckInterval, defaults.QueueCheckInterval, &cfg.QueueCheckInterval},
		{"jobStartTimeout", q.JobStartTimeout, defaults.JobStartTimeout, &cfg.JobStartTimeout},
		{"waitTimeAfterSuccessfulRun", q.WaitTimeAfterSuccessfulRun, defaults.WaitTimeAfterSuccessfulRun, &cfg.WaitTimeAfterSuccessfulRun},
		{"waitTimeAfterError", q.WaitTimeAfterError, defaults.WaitTimeAfterError, &cfg.WaitTimeAfterError},
		{"waitTimeAfterFailedRun", q.WaitTimeAfterFailedRun, defaults.WaitTimeAfterFailedRun, &cfg.WaitTimeAfterFailedRun},
		{"waitTimeAfterTimeout", q.WaitTimeAfterTimeout, defaults.WaitTimeAfterTimeout, &cfg.WaitTimeAfterTimeout},
	}
	for _, f := range fields {
		v := f.value
		if v == "" {
			v = f.fallback
		}
		if v == "" {
			// left zero; validation reports it
			continue
		}
		d, err := core.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("%w: queue %q field %s: %v", core.ErrInvalidConfig, q.QueueName, f.name, err)
		}
		*f.dst = d
	}
	return cfg, nil
}

func envList(env map[string]string) []core.EnvVar {
	if len(env) == 0 {
		return nil
	}
	names := make([]string, 0, len(env))
	for k := range env {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]core.EnvVar, 0, len(names))
	for _, k := range names {
		out = append(out, core.EnvVar{Name: k, Value: env[k]})
	}
	return out
}
