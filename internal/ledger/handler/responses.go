package handler

import (
	"time"

	"loyaltycore/internal/ledger/models"
)

// ApplyResponse is the HTTP response body for POST /transactions and
// POST /scan.
type ApplyResponse struct {
	NewBalance    int64  `json:"newBalance"`
	TransactionID string `json:"transactionId"`
	Replayed      bool   `json:"replayed"`
}

// FromResult converts a ledger apply result to its wire form.
func FromResult(result *models.ApplyResult) ApplyResponse {
	return ApplyResponse{
		NewBalance:    result.NewBalance,
		TransactionID: result.Transaction.ID.String(),
		Replayed:      result.Replayed,
	}
}

// TransactionResponse is one entry of GET /cards/{id}/transactions.
type TransactionResponse struct {
	TransactionID  string    `json:"transactionId"`
	CardID         string    `json:"cardId"`
	Delta          int64     `json:"delta"`
	Source         string    `json:"source"`
	IdempotencyKey string    `json:"idempotencyKey"`
	BalanceAfter   int64     `json:"balanceAfter"`
	CreatedAt      time.Time `json:"createdAt"`
}

// TransactionListResponse is the HTTP response body for
// GET /cards/{id}/transactions.
type TransactionListResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
}

// FromTransactions converts ledger records to their wire form.
func FromTransactions(txns []*models.PointTransaction) TransactionListResponse {
	out := TransactionListResponse{Transactions: make([]TransactionResponse, 0, len(txns))}
	for _, txn := range txns {
		out.Transactions = append(out.Transactions, TransactionResponse{
			TransactionID:  txn.ID.String(),
			CardID:         txn.CardID.String(),
			Delta:          txn.Delta,
			Source:         txn.Source,
			IdempotencyKey: txn.IdempotencyKey,
			BalanceAfter:   txn.BalanceAfter,
			CreatedAt:      txn.CreatedAt,
		})
	}
	return out
}
