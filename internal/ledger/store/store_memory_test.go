package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	cardstore "loyaltycore/internal/card/store"
	id "loyaltycore/pkg/domain"
	"loyaltycore/pkg/platform/sentinel"
)

// =============================================================================
// Ledger Memory Store Test Suite
// =============================================================================
// The memory store carries the same exactly-once and no-negative-balance
// contract as the Postgres store; these tests pin that contract down where it
// can run without a database.

type LedgerMemoryStoreSuite struct {
	suite.Suite
	cards  *cardstore.Memory
	store  *Memory
	cardID id.CardID
}

func TestLedgerMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(LedgerMemoryStoreSuite))
}

func (s *LedgerMemoryStoreSuite) SetupTest() {
	s.cards = cardstore.NewMemory()
	s.store = NewMemory(s.cards)

	card, created, err := s.cards.CreateIfAbsent(context.Background(), id.NewEnrollmentID(), time.Now())
	s.Require().NoError(err)
	s.Require().True(created)
	s.cardID = card.ID
}

func (s *LedgerMemoryStoreSuite) apply(delta int64, key string) (*ApplyParams, error) {
	params := ApplyParams{
		CardID:         s.cardID,
		Delta:          delta,
		Source:         "test",
		IdempotencyKey: key,
		Now:            time.Now(),
	}
	_, err := s.store.ApplyDelta(context.Background(), params)
	return &params, err
}

func (s *LedgerMemoryStoreSuite) TestApplyDelta() {
	ctx := context.Background()

	s.Run("award increases balance and records balance_after", func() {
		result, err := s.store.ApplyDelta(ctx, ApplyParams{
			CardID: s.cardID, Delta: 10, Source: "scan", IdempotencyKey: "award-1", Now: time.Now(),
		})
		s.NoError(err)
		s.False(result.Replayed)
		s.Equal(int64(10), result.NewBalance)
		s.Equal(int64(10), result.Transaction.BalanceAfter)
		s.Equal(int64(2), result.Version)
	})

	s.Run("replaying a key returns the original result without re-applying", func() {
		params := ApplyParams{
			CardID: s.cardID, Delta: 10, Source: "scan", IdempotencyKey: "award-2", Now: time.Now(),
		}
		first, err := s.store.ApplyDelta(ctx, params)
		s.Require().NoError(err)

		second, err := s.store.ApplyDelta(ctx, params)
		s.NoError(err)
		s.True(second.Replayed)
		s.Equal(first.Transaction.ID, second.Transaction.ID)
		s.Equal(first.NewBalance, second.NewBalance)

		card, err := s.cards.Get(ctx, s.cardID)
		s.Require().NoError(err)
		s.Equal(first.NewBalance, card.Balance)
		// A replayed result still reports the card's current version.
		s.Equal(card.Version, second.Version)
	})

	s.Run("redeem below zero fails and leaves balance unchanged", func() {
		_, err := s.store.ApplyDelta(ctx, ApplyParams{
			CardID: s.cardID, Delta: 10, Source: "scan", IdempotencyKey: "award-3", Now: time.Now(),
		})
		s.Require().NoError(err)

		before, err := s.cards.Get(ctx, s.cardID)
		s.Require().NoError(err)

		_, err = s.store.ApplyDelta(ctx, ApplyParams{
			CardID: s.cardID, Delta: -(before.Balance + 5), Source: "redeem", IdempotencyKey: "redeem-1", Now: time.Now(),
		})
		s.ErrorIs(err, ErrInsufficientBalance)

		after, err := s.cards.Get(ctx, s.cardID)
		s.Require().NoError(err)
		s.Equal(before.Balance, after.Balance)
		s.Equal(before.Version, after.Version)
	})

	s.Run("unknown card fails with not found", func() {
		_, err := s.store.ApplyDelta(ctx, ApplyParams{
			CardID: id.NewCardID(), Delta: 1, Source: "scan", IdempotencyKey: "ghost-1", Now: time.Now(),
		})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("deactivated card rejects deltas", func() {
		s.Require().NoError(s.cards.Deactivate(ctx, s.cardID))
		_, err := s.store.ApplyDelta(ctx, ApplyParams{
			CardID: s.cardID, Delta: 1, Source: "scan", IdempotencyKey: "inactive-1", Now: time.Now(),
		})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *LedgerMemoryStoreSuite) TestConservation() {
	// The sum of all transaction deltas for a card always equals the
	// card's balance, including under concurrent writers.
	ctx := context.Background()
	const writers = 50

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _ = s.apply(int64(n+1), fmt.Sprintf("concurrent-%d", n))
		}(i)
	}
	wg.Wait()

	txns, err := s.store.ListByCard(ctx, s.cardID, writers+1)
	s.Require().NoError(err)

	var sum int64
	for _, txn := range txns {
		sum += txn.Delta
	}
	card, err := s.cards.Get(ctx, s.cardID)
	s.Require().NoError(err)
	s.Equal(card.Balance, sum)
	s.Len(txns, writers)
}

func (s *LedgerMemoryStoreSuite) TestConcurrentReplay() {
	// N concurrent applications of the same key yield exactly one
	// transaction and the delta applies exactly once.
	ctx := context.Background()
	const callers = 50

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.store.ApplyDelta(ctx, ApplyParams{
				CardID: s.cardID, Delta: 10, Source: "scan", IdempotencyKey: "shared-key", Now: time.Now(),
			})
		}()
	}
	wg.Wait()

	card, err := s.cards.Get(ctx, s.cardID)
	s.Require().NoError(err)
	s.Equal(int64(10), card.Balance)

	txns, err := s.store.ListByCard(ctx, s.cardID, callers)
	s.Require().NoError(err)
	s.Len(txns, 1)
}

func (s *LedgerMemoryStoreSuite) TestListByCard() {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := s.apply(int64(i+1), fmt.Sprintf("list-%d", i))
		s.Require().NoError(err)
	}

	s.Run("returns transactions in application order", func() {
		txns, err := s.store.ListByCard(ctx, s.cardID, 10)
		s.NoError(err)
		s.Require().Len(txns, 5)
		for i, txn := range txns {
			s.Equal(int64(i+1), txn.Delta)
		}
	})

	s.Run("limit keeps the most recent entries", func() {
		txns, err := s.store.ListByCard(ctx, s.cardID, 2)
		s.NoError(err)
		s.Require().Len(txns, 2)
		s.Equal(int64(4), txns[0].Delta)
		s.Equal(int64(5), txns[1].Delta)
	})
}
