package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"loyaltycore/internal/ledger/models"
	id "loyaltycore/pkg/domain"
	"loyaltycore/pkg/platform/sentinel"
)

// Postgres error codes this store translates.
const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// Postgres is the durable ledger store. Every apply runs inside one database
// transaction: idempotency lookup, card row lock, transaction insert, and the
// balance/version update commit together or not at all.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a Postgres-backed ledger store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) ApplyDelta(ctx context.Context, params ApplyParams) (*models.ApplyResult, error) {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin apply: %w", err)
	}
	defer func() { _ = dbtx.Rollback() }()

	// A key that was already applied returns its recorded result without
	// touching the card.
	if existing, err := s.findByKey(ctx, dbtx, params.IdempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		var version int64
		err := dbtx.QueryRowContext(ctx, `
			SELECT version FROM loyalty_cards WHERE id = $1
		`, uuid.UUID(existing.CardID)).Scan(&version)
		if err != nil {
			return nil, translatePQ(err, "read card version")
		}
		return &models.ApplyResult{
			Transaction: existing,
			NewBalance:  existing.BalanceAfter,
			Version:     version,
			Replayed:    true,
		}, nil
	}

	var (
		balance int64
		version int64
		active  bool
	)
	err = dbtx.QueryRowContext(ctx, `
		SELECT balance, version, active
		FROM loyalty_cards
		WHERE id = $1
		FOR UPDATE
	`, uuid.UUID(params.CardID)).Scan(&balance, &version, &active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, translatePQ(err, "lock card")
	}
	if !active {
		return nil, sentinel.ErrNotFound
	}

	newBalance := balance + params.Delta
	if newBalance < 0 {
		return nil, ErrInsufficientBalance
	}

	txn := &models.PointTransaction{
		ID:             id.NewTransactionID(),
		CardID:         params.CardID,
		Delta:          params.Delta,
		Source:         params.Source,
		IdempotencyKey: params.IdempotencyKey,
		BalanceAfter:   newBalance,
		CreatedAt:      params.Now,
	}
	_, err = dbtx.ExecContext(ctx, `
		INSERT INTO point_transactions (id, card_id, delta, source, idempotency_key, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.UUID(txn.ID), uuid.UUID(txn.CardID), txn.Delta, txn.Source, txn.IdempotencyKey, txn.BalanceAfter, txn.CreatedAt)
	if err != nil {
		// A concurrent apply of the same key won the insert race. Surface
		// a conflict so the caller re-reads the recorded result.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return nil, sentinel.ErrConflict
		}
		return nil, translatePQ(err, "insert transaction")
	}

	res, err := dbtx.ExecContext(ctx, `
		UPDATE loyalty_cards
		SET balance = $2, version = version + 1
		WHERE id = $1 AND version = $3
	`, uuid.UUID(params.CardID), newBalance, version)
	if err != nil {
		return nil, translatePQ(err, "update card balance")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update card rows affected: %w", err)
	}
	if rows == 0 {
		return nil, sentinel.ErrConflict
	}

	if err := dbtx.Commit(); err != nil {
		return nil, translatePQ(err, "commit apply")
	}

	return &models.ApplyResult{
		Transaction: txn,
		NewBalance:  newBalance,
		Version:     version + 1,
	}, nil
}

func (s *Postgres) findByKey(ctx context.Context, dbtx *sql.Tx, key string) (*models.PointTransaction, error) {
	var (
		txnID  uuid.UUID
		cardID uuid.UUID
		txn    models.PointTransaction
	)
	err := dbtx.QueryRowContext(ctx, `
		SELECT id, card_id, delta, source, idempotency_key, balance_after, created_at
		FROM point_transactions
		WHERE idempotency_key = $1
	`, key).Scan(&txnID, &cardID, &txn.Delta, &txn.Source, &txn.IdempotencyKey, &txn.BalanceAfter, &txn.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find transaction by key: %w", err)
	}
	txn.ID = id.TransactionID(txnID)
	txn.CardID = id.CardID(cardID)
	return &txn, nil
}

func (s *Postgres) ListByCard(ctx context.Context, cardID id.CardID, limit int) ([]*models.PointTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	// Most recent transactions, returned in application order.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, card_id, delta, source, idempotency_key, balance_after, created_at
		FROM (
			SELECT id, card_id, delta, source, idempotency_key, balance_after, created_at
			FROM point_transactions
			WHERE card_id = $1
			ORDER BY created_at DESC, id
			LIMIT $2
		) recent
		ORDER BY created_at, id
	`, uuid.UUID(cardID), limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []*models.PointTransaction
	for rows.Next() {
		var (
			txnID uuid.UUID
			cID   uuid.UUID
			txn   models.PointTransaction
		)
		if err := rows.Scan(&txnID, &cID, &txn.Delta, &txn.Source, &txn.IdempotencyKey, &txn.BalanceAfter, &txn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txn.ID = id.TransactionID(txnID)
		txn.CardID = id.CardID(cID)
		txns = append(txns, &txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txns, nil
}

// translatePQ maps retryable Postgres failures onto sentinel.ErrConflict so
// the service layer applies its bounded backoff.
func translatePQ(err error, op string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqSerializationFailure, pqDeadlockDetected:
			return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
