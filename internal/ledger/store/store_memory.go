package store

import (
	"context"
	"sync"

	cardmodels "loyaltycore/internal/card/models"
	cardstore "loyaltycore/internal/card/store"
	"loyaltycore/internal/ledger/models"
	id "loyaltycore/pkg/domain"
	"loyaltycore/pkg/platform/sentinel"
)

// Memory is the in-memory ledger store. It serializes every apply through a
// single mutex plus the card store's record lock, giving the same observable
// semantics as the Postgres row lock.
type Memory struct {
	cards *cardstore.Memory

	mu     sync.Mutex
	byKey  map[string]*models.PointTransaction
	byCard map[id.CardID][]*models.PointTransaction
}

// NewMemory constructs an in-memory ledger over the in-memory card store.
func NewMemory(cards *cardstore.Memory) *Memory {
	return &Memory{
		cards:  cards,
		byKey:  make(map[string]*models.PointTransaction),
		byCard: make(map[id.CardID][]*models.PointTransaction),
	}
}

func (s *Memory) ApplyDelta(ctx context.Context, params ApplyParams) (*models.ApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byKey[params.IdempotencyKey]; ok {
		card, err := s.cards.Get(ctx, existing.CardID)
		if err != nil {
			return nil, err
		}
		return &models.ApplyResult{
			Transaction: existing,
			NewBalance:  existing.BalanceAfter,
			Version:     card.Version,
			Replayed:    true,
		}, nil
	}

	var result models.ApplyResult
	err := s.cards.Mutate(params.CardID, func(card *cardmodels.LoyaltyCard) error {
		if !card.Active {
			return sentinel.ErrNotFound
		}
		next := card.Balance + params.Delta
		if next < 0 {
			return ErrInsufficientBalance
		}
		card.Balance = next
		card.Version++

		txn := &models.PointTransaction{
			ID:             id.NewTransactionID(),
			CardID:         params.CardID,
			Delta:          params.Delta,
			Source:         params.Source,
			IdempotencyKey: params.IdempotencyKey,
			BalanceAfter:   next,
			CreatedAt:      params.Now,
		}
		s.byKey[params.IdempotencyKey] = txn
		s.byCard[params.CardID] = append(s.byCard[params.CardID], txn)

		result = models.ApplyResult{
			Transaction: txn,
			NewBalance:  next,
			Version:     card.Version,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Memory) ListByCard(ctx context.Context, cardID id.CardID, limit int) ([]*models.PointTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txns := s.byCard[cardID]
	if limit > 0 && len(txns) > limit {
		txns = txns[len(txns)-limit:]
	}
	out := make([]*models.PointTransaction, len(txns))
	copy(out, txns)
	return out, nil
}
