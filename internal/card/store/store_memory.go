package store

import (
	"context"
	"sync"
	"time"

	"loyaltycore/internal/card/models"
	id "loyaltycore/pkg/domain"
	"loyaltycore/pkg/platform/sentinel"
)

// Memory is the in-memory card store used in development and unit tests.
type Memory struct {
	mu           sync.Mutex
	byID         map[id.CardID]*models.LoyaltyCard
	byEnrollment map[id.EnrollmentID]id.CardID
}

// NewMemory constructs an empty in-memory card store.
func NewMemory() *Memory {
	return &Memory{
		byID:         make(map[id.CardID]*models.LoyaltyCard),
		byEnrollment: make(map[id.EnrollmentID]id.CardID),
	}
}

func (s *Memory) CreateIfAbsent(ctx context.Context, enrollmentID id.EnrollmentID, now time.Time) (*models.LoyaltyCard, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cardID, ok := s.byEnrollment[enrollmentID]; ok {
		return s.byID[cardID].Clone(), false, nil
	}

	card := &models.LoyaltyCard{
		ID:           id.NewCardID(),
		EnrollmentID: enrollmentID,
		Balance:      0,
		Tier:         models.TierStandard,
		Version:      1,
		Active:       true,
		CreatedAt:    now,
	}
	s.byID[card.ID] = card
	s.byEnrollment[enrollmentID] = card.ID
	return card.Clone(), true, nil
}

func (s *Memory) Get(ctx context.Context, cardID id.CardID) (*models.LoyaltyCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, ok := s.byID[cardID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return card.Clone(), nil
}

func (s *Memory) GetByEnrollment(ctx context.Context, enrollmentID id.EnrollmentID) (*models.LoyaltyCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cardID, ok := s.byEnrollment[enrollmentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.byID[cardID].Clone(), nil
}

func (s *Memory) Deactivate(ctx context.Context, cardID id.CardID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, ok := s.byID[cardID]
	if !ok {
		return sentinel.ErrNotFound
	}
	card.Active = false
	return nil
}

// Mutate runs fn against the live card record under the store lock. The
// in-memory ledger store uses this to serialize balance mutations the way the
// Postgres ledger uses a row lock. No other caller may use it.
func (s *Memory) Mutate(cardID id.CardID, fn func(card *models.LoyaltyCard) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, ok := s.byID[cardID]
	if !ok {
		return sentinel.ErrNotFound
	}
	return fn(card)
}
