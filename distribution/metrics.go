package distribution

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments the retry loop. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	runs             prometheus.Counter
	itemsCompleted   prometheus.Counter
	itemsFailed      prometheus.Counter
	itemsRescheduled prometheus.Counter
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quorum",
			Subsystem: "distribution",
			Name:      "retry_runs_total",
			Help:      "Number of retry batch runs started",
		}),
		itemsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quorum",
			Subsystem: "distribution",
			Name:      "retry_items_completed_total",
			Help:      "Number of retry items resolved with all recipients delivered",
		}),
		itemsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quorum",
			Subsystem: "distribution",
			Name:      "retry_items_failed_total",
			Help:      "Number of retry items that exhausted their attempts",
		}),
		itemsRescheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quorum",
			Subsystem: "distribution",
			Name:      "retry_items_rescheduled_total",
			Help:      "Number of retry items rescheduled for another attempt",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(m.runs, m.itemsCompleted, m.itemsFailed, m.itemsRescheduled)
	}

	return m
}

func (m *Metrics) RunStarted() {
	if m != nil {
		m.runs.Inc()
	}
}

func (m *Metrics) ItemCompleted() {
	if m != nil {
		m.itemsCompleted.Inc()
	}
}

func (m *Metrics) ItemFailed() {
	if m != nil {
		m.itemsFailed.Inc()
	}
}

func (m *Metrics) ItemRescheduled() {
	if m != nil {
		m.itemsRescheduled.Inc()
	}
}
