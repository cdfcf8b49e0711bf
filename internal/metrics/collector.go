package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/openjobspec/ojs-job-chief/internal/core"
)

// StateSource exposes the latest per-queue counters.
type StateSource interface {
	GetQueuesStates() map[string]core.QueueStat
}

// ActiveSource exposes the queues with a run in flight.
type ActiveSource interface {
	ActiveRuns() map[string]string
}

var (
	queueItemsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "queue", "items"),
		"Items per queue and state as last observed by the queue provider.",
		[]string{"queue", "state"}, nil,
	)
	activeRunDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "active_run"),
		"1 while a queue has a run in flight.",
		[]string{"queue"}, nil,
	)
)

// Collector reports queue state and active runs at scrape time.
type Collector struct {
	states StateSource
	active ActiveSource
	queues []string
}

// NewCollector creates a Collector for the configured queues. Either
// source may be nil.
func NewCollector(states StateSource, active ActiveSource, queues []string) *Collector {
	return &Collector{states: states, active: active, queues: queues}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- queueItemsDesc
	ch <- activeRunDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.states != nil {
		for queue, st := range c.states.GetQueuesStates() {
			for state, v := range map[string]int{
				core.StatCreated:   st.Created,
				core.StatActive:    st.Active,
				core.StatCompleted: st.Completed,
				core.StatFailed:    st.Failed,
				core.StatRetry:     st.Retry,
				core.StatExpired:   st.Expired,
				core.StatCancelled: st.Cancelled,
			} {
				ch <- prometheus.MustNewConstMetric(queueItemsDesc, prometheus.GaugeValue, float64(v), queue, state)
			}
		}
	}
	if c.active != nil {
		active := c.active.ActiveRuns()
		for _, q := range c.queues {
			v := 0.0
			if _, ok := active[q]; ok {
				v = 1
			}
			ch <- prometheus.MustNewConstMetric(activeRunDesc, prometheus.GaugeValue, v, q)
		}
	}
}
