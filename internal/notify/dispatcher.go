package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"loyaltycore/internal/notify/metrics"
)

// subscriptionBuffer bounds how many undelivered events a single subscription
// may hold before the oldest is evicted.
const subscriptionBuffer = 64

// Dispatcher delivers events to in-process subscriptions and configured
// channels. Bursts of events sharing a dedupe key within the coalescing
// window collapse into a single delivery carrying the newest payload, judged
// by the payload's version marker rather than arrival order; this only
// affects notification cadence, never ledger state.
//
// All deliveries happen on the Run goroutine, so events for one target reach
// any given subscription in publish order.
type Dispatcher struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	window   time.Duration
	channels []Channel

	in chan Event

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets a logger for delivery failures.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithChannel registers an additional delivery channel.
func WithChannel(ch Channel) Option {
	return func(d *Dispatcher) {
		d.channels = append(d.channels, ch)
	}
}

// New creates a dispatcher with the given coalescing window. A zero window
// disables coalescing and delivers every event immediately.
func New(window time.Duration, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		window: window,
		in:     make(chan Event, 256),
		subs:   make(map[string]map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Publish enqueues an event for dispatch. It blocks only when the intake
// buffer is full and honors context cancellation.
func (d *Dispatcher) Publish(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	select {
	case d.in <- event:
		d.metrics.IncPublished()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a consumer for events targeted at targetID. The caller
// must Close the subscription when done.
func (d *Dispatcher) Subscribe(targetID string) *Subscription {
	sub := &Subscription{
		targetID:   targetID,
		events:     make(chan Event, subscriptionBuffer),
		dispatcher: d,
	}
	d.mu.Lock()
	if d.subs[targetID] == nil {
		d.subs[targetID] = make(map[*Subscription]struct{})
	}
	d.subs[targetID][sub] = struct{}{}
	d.mu.Unlock()
	return sub
}

func (d *Dispatcher) unsubscribe(sub *Subscription) {
	d.mu.Lock()
	if set, ok := d.subs[sub.targetID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(d.subs, sub.targetID)
		}
	}
	d.mu.Unlock()
}

type pendingEvent struct {
	event    Event
	deadline time.Time
}

// payloadVersion extracts the monotonic version marker publishers put in
// state-change payloads. JSON round-trips turn numbers into float64.
func payloadVersion(e Event) (int64, bool) {
	switch v := e.Payload["version"].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// supersedes reports whether candidate carries state at least as new as
// current. Events with version markers compare by version; otherwise by
// occurrence time, ties going to the later arrival.
func supersedes(candidate, current Event) bool {
	cv, cok := payloadVersion(candidate)
	pv, pok := payloadVersion(current)
	if cok && pok {
		return cv >= pv
	}
	return !candidate.OccurredAt.Before(current.OccurredAt)
}

// Run consumes published events, coalesces them, and delivers. It returns
// when ctx is cancelled, flushing pending events first.
func (d *Dispatcher) Run(ctx context.Context) error {
	// Pending state is owned exclusively by this goroutine.
	pending := make(map[string]*pendingEvent)
	var order []string

	tickInterval := d.window / 2
	if tickInterval <= 0 {
		tickInterval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	flushDue := func(now time.Time) {
		remaining := order[:0]
		for _, key := range order {
			pe := pending[key]
			if pe == nil {
				continue
			}
			if !now.Before(pe.deadline) {
				delete(pending, key)
				d.deliver(ctx, pe.event)
			} else {
				remaining = append(remaining, key)
			}
		}
		order = remaining
	}

	for {
		select {
		case <-ctx.Done():
			for _, key := range order {
				if pe := pending[key]; pe != nil {
					d.deliver(context.Background(), pe.event)
				}
			}
			return ctx.Err()
		case event := <-d.in:
			if d.window <= 0 {
				d.deliver(ctx, event)
				continue
			}
			key := event.TargetID + "|" + event.DedupeKey
			if pe, ok := pending[key]; ok {
				// Keep the original position and deadline. Publishers race
				// after commit, so arrival order is not state order: the
				// payload carrying the newest state wins.
				if supersedes(event, pe.event) {
					pe.event = event
				}
				d.metrics.IncCoalesced()
				continue
			}
			pending[key] = &pendingEvent{event: event, deadline: time.Now().Add(d.window)}
			order = append(order, key)
		case now := <-ticker.C:
			flushDue(now)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event Event) {
	d.mu.RLock()
	for sub := range d.subs[event.TargetID] {
		if sub.send(event) {
			d.metrics.IncDelivered("inproc")
		} else {
			d.metrics.IncDropped()
		}
	}
	d.mu.RUnlock()

	for _, ch := range d.channels {
		if err := ch.Deliver(ctx, event); err != nil {
			d.metrics.IncDeliveryFailure(ch.Name())
			if d.logger != nil {
				d.logger.ErrorContext(ctx, "notification delivery failed",
					"channel", ch.Name(),
					"event_type", string(event.Type),
					"target_id", event.TargetID,
					"error", err,
				)
			}
			continue
		}
		d.metrics.IncDelivered(ch.Name())
	}
}

// Subscription is a registered consumer of events for one target.
type Subscription struct {
	targetID   string
	events     chan Event
	dispatcher *Dispatcher
	closeOnce  sync.Once
}

// Events returns the delivery channel.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// TargetID returns the target this subscription observes.
func (s *Subscription) TargetID() string {
	return s.targetID
}

// Close unregisters the subscription.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.dispatcher.unsubscribe(s)
		close(s.events)
	})
}

// send enqueues without blocking the dispatch loop. When the buffer is full
// the oldest event is evicted so the consumer never observes a stale balance
// after a newer one.
func (s *Subscription) send(event Event) bool {
	select {
	case s.events <- event:
		return true
	default:
	}
	select {
	case <-s.events:
	default:
	}
	select {
	case s.events <- event:
		return false
	default:
		return false
	}
}
