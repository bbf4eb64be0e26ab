package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the notification dispatcher.
type Metrics struct {
	Published        prometheus.Counter
	Coalesced        prometheus.Counter
	Delivered        *prometheus.CounterVec
	DeliveryFailures *prometheus.CounterVec
	Dropped          prometheus.Counter
}

// New creates a Metrics instance with all dispatcher metrics registered.
func New() *Metrics {
	return &Metrics{
		Published: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loyalty_notifications_published_total",
			Help: "Total number of events accepted for dispatch",
		}),
		Coalesced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loyalty_notifications_coalesced_total",
			Help: "Total number of events merged into a pending event with the same dedupe key",
		}),
		Delivered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "loyalty_notifications_delivered_total",
			Help: "Total number of events delivered, by channel",
		}, []string{"channel"}),
		DeliveryFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "loyalty_notification_delivery_failures_total",
			Help: "Total number of failed channel deliveries, by channel",
		}, []string{"channel"}),
		Dropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loyalty_notifications_dropped_total",
			Help: "Total number of events dropped from slow subscription buffers",
		}),
	}
}

func (m *Metrics) IncPublished() {
	if m != nil {
		m.Published.Inc()
	}
}

func (m *Metrics) IncCoalesced() {
	if m != nil {
		m.Coalesced.Inc()
	}
}

func (m *Metrics) IncDelivered(channel string) {
	if m != nil {
		m.Delivered.WithLabelValues(channel).Inc()
	}
}

func (m *Metrics) IncDeliveryFailure(channel string) {
	if m != nil {
		m.DeliveryFailures.WithLabelValues(channel).Inc()
	}
}

func (m *Metrics) IncDropped() {
	if m != nil {
		m.Dropped.Inc()
	}
}
