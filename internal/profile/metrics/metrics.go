package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for profile commands.
type Metrics struct {
	// State changes by entity ("section", "item", "identity") and new state
	Transitions *prometheus.CounterVec

	// Refused uploads by reason
	RejectedFiles *prometheus.CounterVec

	// Activity entries that could not be recorded, by action
	AuditFailures *prometheus.CounterVec

	// Version conflicts on save
	Conflicts prometheus.Counter

	// Command latency by operation and result ("ok" or an error code)
	CommandLatency *prometheus.HistogramVec
}

// New creates a Metrics instance registered with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dossier_profile_transitions_total",
			Help: "State transitions applied to sections, items and identities",
		}, []string{"entity", "state"}),

		RejectedFiles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dossier_profile_rejected_files_total",
			Help: "Evidence uploads refused by the upload policy",
		}, []string{"reason"}),

		AuditFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dossier_profile_audit_failures_total",
			Help: "Activity entries that could not be recorded",
		}, []string{"action"}),

		Conflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "dossier_profile_version_conflicts_total",
			Help: "Saves refused because the profile changed concurrently",
		}),

		CommandLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dossier_profile_command_duration_seconds",
			Help:    "Duration of profile commands including persistence",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation", "result"}),
	}
}

// IncrementTransition records that entity moved to state.
func (m *Metrics) IncrementTransition(entity, state string) {
	if m != nil {
		m.Transitions.WithLabelValues(entity, state).Inc()
	}
}

// IncrementRejectedFile records a refused upload.
func (m *Metrics) IncrementRejectedFile(reason string) {
	if m != nil {
		m.RejectedFiles.WithLabelValues(reason).Inc()
	}
}

// IncrementAuditFailure records an activity entry that was lost.
func (m *Metrics) IncrementAuditFailure(action string) {
	if m != nil {
		m.AuditFailures.WithLabelValues(action).Inc()
	}
}

func (m *Metrics) IncrementConflict() {
	if m != nil {
		m.Conflicts.Inc()
	}
}

// ObserveCommand records how long operation took.
func (m *Metrics) ObserveCommand(operation, result string, d time.Duration) {
	if m != nil {
		m.CommandLatency.WithLabelValues(operation, result).Observe(d.Seconds())
	}
}
