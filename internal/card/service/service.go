// Package service implements the card registry: the single owner of loyalty
// card lifecycle. Card creation is idempotent per enrollment, which is what
// keeps racing acceptance paths from ever minting two cards for one customer.
package service

import (
	"context"
	"errors"
	"time"

	"loyaltycore/internal/card/metrics"
	"loyaltycore/internal/card/models"
	"loyaltycore/internal/card/store"
	id "loyaltycore/pkg/domain"
	dErrors "loyaltycore/pkg/domain-errors"
	"loyaltycore/pkg/platform/sentinel"
	"loyaltycore/pkg/requestcontext"
)

// Service is the card registry.
type Service struct {
	store   store.Store
	metrics *metrics.Metrics
}

// New constructs the card registry service. metrics may be nil.
func New(st store.Store, m *metrics.Metrics) *Service {
	return &Service{store: st, metrics: m}
}

// EnsureCard returns the enrollment's card, creating it with balance 0 and
// tier STANDARD if none exists yet. Safe to call any number of times,
// sequentially or concurrently, for the same enrollment.
func (s *Service) EnsureCard(ctx context.Context, enrollmentID id.EnrollmentID) (*models.LoyaltyCard, error) {
	start := time.Now()
	defer s.metrics.ObserveEnsureCard(start)

	card, created, err := s.store.CreateIfAbsent(ctx, enrollmentID, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "ensure card")
	}
	if created {
		s.metrics.IncrementCardsCreated()
	}
	return card, nil
}

// GetCard returns the card snapshot including balance and version.
func (s *Service) GetCard(ctx context.Context, cardID id.CardID) (*models.LoyaltyCard, error) {
	card, err := s.store.Get(ctx, cardID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "card not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get card")
	}
	return card, nil
}

// Deactivate marks an enrollment's card inactive. Used by the enrollment
// workflow when an enrollment is revoked; cards are never deleted.
func (s *Service) Deactivate(ctx context.Context, enrollmentID id.EnrollmentID) error {
	card, err := s.store.GetByEnrollment(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "card not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "deactivate card")
	}
	if err := s.store.Deactivate(ctx, card.ID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "deactivate card")
	}
	return nil
}
