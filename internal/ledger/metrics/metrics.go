package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the transaction ledger.
type Metrics struct {
	TransactionsApplied  prometheus.Counter
	IdempotentReplays    prometheus.Counter
	InsufficientBalances prometheus.Counter
	ConflictRetries      prometheus.Counter
	ApplyDuration        prometheus.Histogram
}

// New creates a Metrics instance with all ledger metrics registered.
func New() *Metrics {
	return &Metrics{
		TransactionsApplied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loyalty_transactions_applied_total",
			Help: "Total number of newly applied point transactions",
		}),
		IdempotentReplays: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loyalty_idempotent_replays_total",
			Help: "Total number of applies served from a previously recorded result",
		}),
		InsufficientBalances: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loyalty_insufficient_balance_rejections_total",
			Help: "Total number of redeems rejected for insufficient balance",
		}),
		ConflictRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loyalty_apply_conflict_retries_total",
			Help: "Total number of internal retries after an optimistic concurrency conflict",
		}),
		ApplyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "loyalty_apply_delta_duration_seconds",
			Help:    "Duration of ApplyDelta operations including retries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncrementApplied() {
	if m != nil {
		m.TransactionsApplied.Inc()
	}
}

func (m *Metrics) IncrementReplays() {
	if m != nil {
		m.IdempotentReplays.Inc()
	}
}

func (m *Metrics) IncrementInsufficientBalance() {
	if m != nil {
		m.InsufficientBalances.Inc()
	}
}

func (m *Metrics) IncrementConflictRetries() {
	if m != nil {
		m.ConflictRetries.Inc()
	}
}

// ObserveApply records the duration of an ApplyDelta operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveApply(start time.Time) {
	if m != nil {
		m.ApplyDuration.Observe(time.Since(start).Seconds())
	}
}
