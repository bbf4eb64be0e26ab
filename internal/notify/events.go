// Package notify fans out ledger and enrollment state changes to subscribed
// consumers. It sits strictly on the reactive path: nothing in this package
// holds a reference to the write APIs, so a delivered event can never
// re-trigger the mutation that produced it.
package notify

import (
	"context"
	"time"
)

// EventType classifies an outbound notification.
type EventType string

const (
	EventBalanceChanged      EventType = "BALANCE_CHANGED"
	EventEnrollmentRequested EventType = "ENROLLMENT_REQUESTED"
	EventEnrollmentAccepted  EventType = "ENROLLMENT_ACCEPTED"
	EventEnrollmentDeclined  EventType = "ENROLLMENT_DECLINED"
	EventEnrollmentExpired   EventType = "ENROLLMENT_EXPIRED"
	EventEnrollmentRevoked   EventType = "ENROLLMENT_REVOKED"
)

// Event is an outbound fact generated by a state transition. Events are never
// mutated after creation. Consumers treat delivery as idempotent by DedupeKey;
// the dispatcher may coalesce bursts sharing a DedupeKey, in which case the
// payload carrying the newest state wins. Publishers of versioned state put a
// "version" marker in the payload so coalescing does not depend on arrival
// order.
type Event struct {
	Type       EventType      `json:"type"`
	TargetID   string         `json:"target_id"`
	DedupeKey  string         `json:"dedupe_key"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Publisher is the narrow interface the write path (ledger, enrollment
// workflow) uses to emit events. It deliberately exposes no read or apply
// operations.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Channel is a pluggable delivery transport. The dispatcher does not know
// whether the transport is a message queue, a push channel, or a polling
// endpoint buffer.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, event Event) error
}
