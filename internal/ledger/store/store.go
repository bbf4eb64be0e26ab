package store

import (
	"context"
	"errors"
	"time"

	"loyaltycore/internal/ledger/models"
	id "loyaltycore/pkg/domain"
)

// ErrInsufficientBalance reports a delta that would drive the card balance
// below zero. The apply records nothing in that case.
var ErrInsufficientBalance = errors.New("insufficient balance")

// ApplyParams carries one balance mutation request into the store.
type ApplyParams struct {
	CardID         id.CardID
	Delta          int64
	Source         string
	IdempotencyKey string
	Now            time.Time
}

// Store is the atomic write path for balances. Implementations must apply the
// idempotency check, the non-negative balance check, the transaction insert,
// and the card balance/version update as one unit: nothing may observe a
// partially-applied state.
//
// Errors: sentinel.ErrNotFound (unknown or deactivated card),
// ErrInsufficientBalance, sentinel.ErrConflict (version check lost a race;
// callers retry with backoff).
type Store interface {
	ApplyDelta(ctx context.Context, params ApplyParams) (*models.ApplyResult, error)

	// ListByCard returns the card's transactions in application order.
	ListByCard(ctx context.Context, cardID id.CardID, limit int) ([]*models.PointTransaction, error)
}
