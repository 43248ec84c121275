package publisher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for audit publishing.
type Metrics struct {
	Recorded        *prometheus.CounterVec
	Dropped         *prometheus.CounterVec
	PersistFailures prometheus.Counter
	SinkFailures    *prometheus.CounterVec
	BreakerState    prometheus.Gauge
}

// NewMetrics registers audit metrics on reg. Pass prometheus.NewRegistry()
// in tests to avoid duplicate registration panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Recorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dossier_audit_recorded_total",
			Help: "Total number of audit entries persisted, by category",
		}, []string{"category"}),
		Dropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dossier_audit_dropped_total",
			Help: "Total number of audit entries dropped before persistence, by reason",
		}, []string{"reason"}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "dossier_audit_persist_failures_total",
			Help: "Total number of audit store write failures",
		}),
		SinkFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dossier_audit_sink_failures_total",
			Help: "Total number of audit sink write failures, by sink",
		}, []string{"sink"}),
		BreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "dossier_audit_breaker_state",
			Help: "Audit store circuit breaker state (0=closed, 1=open)",
		}),
	}
}

func (m *Metrics) incRecorded(category string) {
	if m == nil {
		return
	}
	m.Recorded.WithLabelValues(category).Inc()
}

func (m *Metrics) incDropped(reason string) {
	if m == nil {
		return
	}
	m.Dropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) incPersistFailures() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

func (m *Metrics) incSinkFailures(sink string) {
	if m == nil {
		return
	}
	m.SinkFailures.WithLabelValues(sink).Inc()
}

func (m *Metrics) setBreakerState(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerState.Set(1)
	} else {
		m.BreakerState.Set(0)
	}
}
