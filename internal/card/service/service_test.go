package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"loyaltycore/internal/card/store"
	id "loyaltycore/pkg/domain"
	dErrors "loyaltycore/pkg/domain-errors"
)

type CardServiceSuite struct {
	suite.Suite
	store   *store.Memory
	service *Service
}

func TestCardServiceSuite(t *testing.T) {
	suite.Run(t, new(CardServiceSuite))
}

func (s *CardServiceSuite) SetupTest() {
	s.store = store.NewMemory()
	s.service = New(s.store, nil)
}

func (s *CardServiceSuite) TestEnsureCard() {
	ctx := context.Background()
	enrollmentID := id.NewEnrollmentID()

	s.Run("creates a card with zero balance and standard tier", func() {
		card, err := s.service.EnsureCard(ctx, enrollmentID)
		s.Require().NoError(err)
		s.Equal(int64(0), card.Balance)
		s.Equal("STANDARD", string(card.Tier))
		s.True(card.Active)
	})

	s.Run("returns the existing card on repeat calls", func() {
		first, err := s.service.EnsureCard(ctx, enrollmentID)
		s.Require().NoError(err)
		second, err := s.service.EnsureCard(ctx, enrollmentID)
		s.Require().NoError(err)
		s.Equal(first.ID, second.ID)
	})
}

func (s *CardServiceSuite) TestEnsureCardConcurrent() {
	// 100 concurrent ensure calls for one enrollment yield exactly one card.
	ctx := context.Background()
	enrollmentID := id.NewEnrollmentID()
	const callers = 100

	ids := make([]id.CardID, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			card, err := s.service.EnsureCard(ctx, enrollmentID)
			if err == nil {
				ids[n] = card.ID
			}
		}(i)
	}
	wg.Wait()

	unique := make(map[id.CardID]struct{})
	for _, cardID := range ids {
		s.Require().False(cardID.IsNil())
		unique[cardID] = struct{}{}
	}
	s.Len(unique, 1)
}

func (s *CardServiceSuite) TestGetCard() {
	ctx := context.Background()

	s.Run("unknown card returns not found", func() {
		_, err := s.service.GetCard(ctx, id.NewCardID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("returns the card snapshot", func() {
		created, err := s.service.EnsureCard(ctx, id.NewEnrollmentID())
		s.Require().NoError(err)
		card, err := s.service.GetCard(ctx, created.ID)
		s.NoError(err)
		s.Equal(created.ID, card.ID)
	})
}

func (s *CardServiceSuite) TestDeactivate() {
	ctx := context.Background()
	enrollmentID := id.NewEnrollmentID()

	s.Run("unknown enrollment returns not found", func() {
		err := s.service.Deactivate(ctx, id.NewEnrollmentID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("marks the card inactive without deleting it", func() {
		created, err := s.service.EnsureCard(ctx, enrollmentID)
		s.Require().NoError(err)

		s.Require().NoError(s.service.Deactivate(ctx, enrollmentID))

		card, err := s.service.GetCard(ctx, created.ID)
		s.Require().NoError(err)
		s.False(card.Active)
	})
}
