// Package service implements the transaction ledger: the single authoritative
// writer of point balances. Every balance change in the system passes through
// ApplyDelta; components that react to balance changes receive events and
// hold no reference back to this API.
package service

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"loyaltycore/internal/ledger/metrics"
	"loyaltycore/internal/ledger/models"
	"loyaltycore/internal/ledger/store"
	"loyaltycore/internal/notify"
	id "loyaltycore/pkg/domain"
	dErrors "loyaltycore/pkg/domain-errors"
	"loyaltycore/pkg/platform/sentinel"
	"loyaltycore/pkg/requestcontext"
)

const (
	// maxApplyAttempts bounds internal retries on optimistic concurrency
	// conflicts. Unbounded retry risks livelock under contention.
	maxApplyAttempts = 5
	retryBaseDelay   = 10 * time.Millisecond
)

var tracer = otel.Tracer("loyaltycore/ledger")

// Service applies balance deltas exactly once per idempotency key.
type Service struct {
	store     store.Store
	publisher notify.Publisher
	metrics   *metrics.Metrics
}

// New constructs the ledger service. metrics may be nil.
func New(st store.Store, publisher notify.Publisher, m *metrics.Metrics) *Service {
	return &Service{store: st, publisher: publisher, metrics: m}
}

// ApplyDelta applies one signed delta to a card. The idempotency key must be
// caller-generated and unique per logical intent; replaying a key returns the
// original result without re-applying the delta, indefinitely.
func (s *Service) ApplyDelta(ctx context.Context, cardID id.CardID, delta int64, source, idempotencyKey string) (*models.ApplyResult, error) {
	start := time.Now()
	defer s.metrics.ObserveApply(start)

	ctx, span := tracer.Start(ctx, "ledger.ApplyDelta",
		trace.WithAttributes(
			attribute.String("card_id", cardID.String()),
			attribute.Int64("delta", delta),
			attribute.String("source", source),
		))
	defer span.End()

	if err := validateApply(cardID, delta, source, idempotencyKey); err != nil {
		return nil, err
	}

	params := store.ApplyParams{
		CardID:         cardID,
		Delta:          delta,
		Source:         source,
		IdempotencyKey: idempotencyKey,
		Now:            requestcontext.Now(ctx),
	}

	var result *models.ApplyResult
	var err error
	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		if attempt > 0 {
			s.metrics.IncrementConflictRetries()
			if err := sleepWithJitter(ctx, attempt); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "apply cancelled during retry")
			}
		}
		result, err = s.store.ApplyDelta(ctx, params)
		if err == nil {
			break
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, s.translate(err)
		}
	}
	if err != nil {
		// Conflict survived every attempt.
		return nil, dErrors.Wrap(err, dErrors.CodeConcurrency, "card busy, apply retries exhausted")
	}

	span.SetAttributes(attribute.Bool("replayed", result.Replayed))

	if result.Replayed {
		s.metrics.IncrementReplays()
		return result, nil
	}
	s.metrics.IncrementApplied()

	// One event per newly applied transaction; replays emit nothing.
	event := notify.Event{
		Type:      notify.EventBalanceChanged,
		TargetID:  cardID.String(),
		DedupeKey: "balance_changed:" + cardID.String(),
		Payload: map[string]any{
			"card_id":        cardID.String(),
			"transaction_id": result.Transaction.ID.String(),
			"delta":          delta,
			"balance":        result.NewBalance,
			"version":        result.Version,
		},
		OccurredAt: result.Transaction.CreatedAt,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		// The ledger write committed; notification delivery is at-least-once
		// from here and must not fail the apply.
		span.RecordError(err)
	}

	return result, nil
}

// ListTransactions returns the card's most recent transactions in
// application order.
func (s *Service) ListTransactions(ctx context.Context, cardID id.CardID, limit int) ([]*models.PointTransaction, error) {
	txns, err := s.store.ListByCard(ctx, cardID, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list transactions")
	}
	return txns, nil
}

func validateApply(cardID id.CardID, delta int64, source, idempotencyKey string) error {
	if cardID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "card id is required")
	}
	if delta == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "delta must be non-zero")
	}
	if source == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "source is required")
	}
	if idempotencyKey == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "idempotency key is required")
	}
	return nil
}

func (s *Service) translate(err error) error {
	switch {
	case errors.Is(err, store.ErrInsufficientBalance):
		s.metrics.IncrementInsufficientBalance()
		return dErrors.New(dErrors.CodeInsufficientBalance, "redeem exceeds card balance")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "card not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "apply delta")
	}
}

// sleepWithJitter backs off exponentially with random jitter.
func sleepWithJitter(ctx context.Context, attempt int) error {
	delay := retryBaseDelay << (attempt - 1)
	delay += time.Duration(rand.Int63n(int64(delay)))
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
