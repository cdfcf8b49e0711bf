package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/openjobspec/ojs-job-chief/internal/core"
)

const namespace = "job_chief"

var (
	serverInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "server_info",
		Help:      "Build information of the running job-chief.",
	}, []string{"version", "backend"})

	// RunsTotal counts finished run cycles by queue and outcome.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Finished run cycles by queue and outcome.",
	}, []string{"queue", "outcome"})

	// RunDuration observes the wall time of run cycles that created a job.
	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of run cycles that created a job.",
		Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200},
	}, []string{"queue", "outcome"})

	// NextRunDelay is the backoff chosen by the most recent run of a queue.
	NextRunDelay = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "next_run_delay_seconds",
		Help:      "Delay before the next trigger chosen by the last run.",
	}, []string{"queue"})
)

// Init records the server info metric.
func Init(version, backend string) {
	serverInfo.WithLabelValues(version, backend).Set(1)
}

// Recorder is a run observer that updates the run metrics.
type Recorder struct{}

// RunFinished records rec.
func (Recorder) RunFinished(_ context.Context, rec core.RunRecord) error {
	RunsTotal.WithLabelValues(rec.Queue, rec.Outcome).Inc()
	if rec.JobName != "" {
		RunDuration.WithLabelValues(rec.Queue, rec.Outcome).Observe(rec.Duration().Seconds())
	}
	NextRunDelay.WithLabelValues(rec.Queue).Set(rec.NextRunAfter.Seconds())
	return nil
}
