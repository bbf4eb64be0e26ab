package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the enrollment workflow.
type Metrics struct {
	Invites         prometheus.Counter
	Acceptances     prometheus.Counter
	Declines        prometheus.Counter
	Expirations     prometheus.Counter
	Revocations     prometheus.Counter
	RespondDuration prometheus.Histogram
}

// New creates a Metrics instance with all workflow metrics registered.
func New() *Metrics {
	return &Metrics{
		Invites: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loyalty_enrollment_invites_total",
			Help: "Total number of enrollment invitations created",
		}),
		Acceptances: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loyalty_enrollment_acceptances_total",
			Help: "Total number of accepted enrollments",
		}),
		Declines: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loyalty_enrollment_declines_total",
			Help: "Total number of declined enrollments",
		}),
		Expirations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loyalty_enrollment_expirations_total",
			Help: "Total number of approval requests expired by the sweep",
		}),
		Revocations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loyalty_enrollment_revocations_total",
			Help: "Total number of revoked enrollments",
		}),
		RespondDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "loyalty_enrollment_respond_duration_seconds",
			Help:    "Duration of Respond operations (acceptance critical path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncrementInvites() {
	if m != nil {
		m.Invites.Inc()
	}
}

func (m *Metrics) IncrementAcceptances() {
	if m != nil {
		m.Acceptances.Inc()
	}
}

func (m *Metrics) IncrementDeclines() {
	if m != nil {
		m.Declines.Inc()
	}
}

func (m *Metrics) IncrementExpirations() {
	if m != nil {
		m.Expirations.Inc()
	}
}

func (m *Metrics) IncrementRevocations() {
	if m != nil {
		m.Revocations.Inc()
	}
}

// ObserveRespond records the duration of a Respond operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveRespond(start time.Time) {
	if m != nil {
		m.RespondDuration.Observe(time.Since(start).Seconds())
	}
}
