package store

import (
	"context"
	"time"

	"loyaltycore/internal/card/models"
	id "loyaltycore/pkg/domain"
)

// Store persists loyalty cards. Creation is idempotent per enrollment: the
// enrollment_id unique constraint guarantees at most one card regardless of
// how many callers race on the same acceptance event.
//
// Balance and version mutation is NOT exposed here. Only the ledger store may
// write those columns.
type Store interface {
	// CreateIfAbsent inserts a fresh card for the enrollment unless one
	// already exists, and returns the card that ended up owning the
	// enrollment together with whether this call created it.
	CreateIfAbsent(ctx context.Context, enrollmentID id.EnrollmentID, now time.Time) (*models.LoyaltyCard, bool, error)

	// Get returns the card or sentinel.ErrNotFound.
	Get(ctx context.Context, cardID id.CardID) (*models.LoyaltyCard, error)

	// GetByEnrollment returns the enrollment's card or sentinel.ErrNotFound.
	GetByEnrollment(ctx context.Context, enrollmentID id.EnrollmentID) (*models.LoyaltyCard, error)

	// Deactivate marks the card inactive. Cards are never deleted.
	Deactivate(ctx context.Context, cardID id.CardID) error
}
