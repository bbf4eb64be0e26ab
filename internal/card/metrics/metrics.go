package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the card registry.
type Metrics struct {
	CardsCreated       prometheus.Counter
	EnsureCardDuration prometheus.Histogram
}

// New creates a Metrics instance with all card registry metrics registered.
func New() *Metrics {
	return &Metrics{
		CardsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loyalty_cards_created_total",
			Help: "Total number of loyalty cards created",
		}),
		EnsureCardDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "loyalty_ensure_card_duration_seconds",
			Help:    "Duration of EnsureCard operations (enrollment acceptance path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementCardsCreated records a newly created card.
func (m *Metrics) IncrementCardsCreated() {
	if m != nil {
		m.CardsCreated.Inc()
	}
}

// ObserveEnsureCard records the duration of an EnsureCard operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveEnsureCard(start time.Time) {
	if m != nil {
		m.EnsureCardDuration.Observe(time.Since(start).Seconds())
	}
}
