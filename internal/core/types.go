package core

import (
	"strconv"
	"time"
)

// Version is the job-chief release reported by metrics and the gRPC health service.
const Version = "1.0.0"

// Image pull policies accepted in a pod template.
const (
	PullAlways       = "Always"
	PullIfNotPresent = "IfNotPresent"
	PullNever        = "Never"
)

// Parallelism bounds for a queue's workload.
const (
	MinParallelism = 1
	MaxParallelism = 30
)

// QueueJobConfig is the immutable run policy for one queue.
type QueueJobConfig struct {
	QueueName                  string
	PodConfig                  PodTemplate
	QueueCheckInterval         time.Duration
	JobStartTimeout            time.Duration
	WaitTimeAfterSuccessfulRun time.Duration
	WaitTimeAfterError         time.Duration
	WaitTimeAfterFailedRun     time.Duration
	WaitTimeAfterTimeout       time.Duration
}

// PodTemplate describes the worker pods launched for a queue.
type PodTemplate struct {
	Parallelism         int32
	Image               string
	Command             []string
	Args                []string
	Env                 []EnvVar
	Configmaps          []string
	Secrets             []string
	Resources           *ResourceRequirements
	PullPolicy          string
	Liveness            *LivenessProbe
	InjectBackendConfig bool
}

// EnvVar is a literal environment variable passed to the worker container.
type EnvVar struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// ResourceList holds cpu and memory quantities in Kubernetes notation.
type ResourceList struct {
	CPU    string `json:"cpu" yaml:"cpu"`
	Memory string `json:"memory" yaml:"memory"`
}

// ResourceRequirements are the limits and requests of the worker container.
type ResourceRequirements struct {
	Limits   ResourceList `json:"limits" yaml:"limits"`
	Requests ResourceList `json:"requests" yaml:"requests"`
}

// LivenessProbe is an HTTP GET probe against the worker container.
type LivenessProbe struct {
	Enabled             bool   `json:"enabled" yaml:"enabled"`
	Path                string `json:"path" yaml:"path"`
	Port                int32  `json:"port" yaml:"port"`
	InitialDelaySeconds int32  `json:"initialDelaySeconds" yaml:"initialDelaySeconds"`
	PeriodSeconds       int32  `json:"periodSeconds" yaml:"periodSeconds"`
	TimeoutSeconds      int32  `json:"timeoutSeconds" yaml:"timeoutSeconds"`
}

// Trigger is a pending request to evaluate a queue at or after NotBefore.
// At most one trigger exists per queue name.
type Trigger struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	NotBefore time.Time `json:"not_before"`
	CreatedAt time.Time `json:"created_at"`

	// Revision is the backend revision the trigger was read at.
	Revision uint64 `json:"-"`
}

// Ready reports whether the trigger may be dispatched at now.
func (t *Trigger) Ready(now time.Time) bool {
	return !now.Before(t.NotBefore)
}

// QueueStat is a point-in-time count of messages per state for one queue.
type QueueStat struct {
	Created   int `json:"created"`
	Retry     int `json:"retry"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Expired   int `json:"expired"`
	Cancelled int `json:"cancelled"`
	Failed    int `json:"failed"`
	All       int `json:"all"`
}

// Queue stat names as reported by workers.
const (
	StatCreated   = "created"
	StatRetry     = "retry"
	StatActive    = "active"
	StatCompleted = "completed"
	StatExpired   = "expired"
	StatCancelled = "cancelled"
	StatFailed    = "failed"
)

// Set assigns the counter named by stat. Unknown names are ignored and
// reported as false.
func (s *QueueStat) Set(stat string, value int) bool {
	switch stat {
	case StatCreated:
		s.Created = value
	case StatRetry:
		s.Retry = value
	case StatActive:
		s.Active = value
	case StatCompleted:
		s.Completed = value
	case StatExpired:
		s.Expired = value
	case StatCancelled:
		s.Cancelled = value
	case StatFailed:
		s.Failed = value
	default:
		return false
	}
	s.All = s.Created + s.Retry + s.Active + s.Completed + s.Expired + s.Cancelled + s.Failed
	return true
}

// SetString is Set for a counter carried as decimal text.
func (s *QueueStat) SetString(stat, value string) bool {
	n, err := strconv.Atoi(value)
	if err != nil {
		return false
	}
	return s.Set(stat, n)
}

// WorkloadEventType tags a lifecycle signal emitted by a workload.
type WorkloadEventType string

const (
	EventStarted   WorkloadEventType = "started"
	EventCompleted WorkloadEventType = "completed"
	EventFailed    WorkloadEventType = "failed"
	EventError     WorkloadEventType = "error"
)

// WorkloadEvent is a lifecycle signal of a running workload.
type WorkloadEvent struct {
	Type    WorkloadEventType `json:"type"`
	Reason  string            `json:"reason,omitempty"`
	Message string            `json:"message,omitempty"`
}

// Run outcomes recorded when a run cycle finishes.
const (
	OutcomeEmpty      = "empty"
	OutcomeCompleted  = "completed"
	OutcomeFailed     = "failed"
	OutcomeError      = "error"
	OutcomeTimeout    = "timeout"
	OutcomeStartError = "start_error"
	OutcomeStopped    = "stopped"
)
