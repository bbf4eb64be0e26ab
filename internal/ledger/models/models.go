package models

import (
	"time"

	id "loyaltycore/pkg/domain"
)

// PointTransaction is an immutable, append-only record of one balance delta.
// Rows are never updated or deleted; corrections are new offsetting
// transactions. BalanceAfter captures the card balance at commit time so an
// idempotent replay can return the original result without recomputation.
type PointTransaction struct {
	ID             id.TransactionID
	CardID         id.CardID
	Delta          int64
	Source         string
	IdempotencyKey string
	BalanceAfter   int64
	CreatedAt      time.Time
}

// ApplyResult is the outcome of a ledger apply: the transaction that owns the
// idempotency key and the card state after it. Replayed marks results served
// from an earlier application of the same key; Version is then the card's
// current version, which later applies may have advanced past the one this
// transaction produced.
type ApplyResult struct {
	Transaction *PointTransaction
	NewBalance  int64
	Version     int64
	Replayed    bool
}
