package storage

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts query activity. A nil *Metrics is valid and records
// nothing, so the engine calls it unconditionally.
type Metrics struct {
	queries    *prometheus.CounterVec
	steps      *prometheus.CounterVec
	violations prometheus.Counter
	rebuilds   prometheus.Counter
}

// NewMetrics creates the counters and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "multikey",
			Subsystem: "query",
			Name:      "total",
			Help:      "Partial-key queries by outcome.",
		}, []string{"result"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "multikey",
			Subsystem: "query",
			Name:      "merge_steps_total",
			Help:      "Merge steps executed, by kind.",
		}, []string{"kind"}),
		violations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "multikey",
			Subsystem: "index",
			Name:      "consistency_violations_total",
			Help:      "Index entries that did not resolve to a stored entry.",
		}),
		rebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "multikey",
			Subsystem: "index",
			Name:      "rebuilds_total",
			Help:      "Full index rebuilds.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.queries, m.steps, m.violations, m.rebuilds)
	}
	return m
}

func (m *Metrics) observeQuery(matched bool) {
	if m == nil {
		return
	}
	result := "miss"
	if matched {
		result = "match"
	}
	m.queries.WithLabelValues(result).Inc()
}

func (m *Metrics) observeStep(kind StepKind) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) observeViolation() {
	if m == nil {
		return
	}
	m.violations.Inc()
}

func (m *Metrics) observeRebuild() {
	if m == nil {
		return
	}
	m.rebuilds.Inc()
}
