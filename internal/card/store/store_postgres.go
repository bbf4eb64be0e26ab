package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"loyaltycore/internal/card/models"
	id "loyaltycore/pkg/domain"
	"loyaltycore/pkg/platform/sentinel"
	"loyaltycore/pkg/platform/tx"
)

// Postgres persists loyalty cards. Statements join an ambient transaction
// from context when the enrollment workflow runs card creation inside its
// atomic accept unit.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a Postgres-backed card store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) CreateIfAbsent(ctx context.Context, enrollmentID id.EnrollmentID, now time.Time) (*models.LoyaltyCard, bool, error) {
	q := tx.Resolve(ctx, s.db)

	newID := id.NewCardID()
	query := `
		INSERT INTO loyalty_cards (id, enrollment_id, balance, tier, version, active, created_at)
		VALUES ($1, $2, 0, $3, 1, TRUE, $4)
		ON CONFLICT (enrollment_id) DO NOTHING
	`
	res, err := q.ExecContext(ctx, query, uuid.UUID(newID), uuid.UUID(enrollmentID), string(models.TierStandard), now)
	if err != nil {
		return nil, false, fmt.Errorf("create card: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("create card rows affected: %w", err)
	}

	card, err := s.GetByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, false, err
	}
	return card, rows > 0, nil
}

func (s *Postgres) Get(ctx context.Context, cardID id.CardID) (*models.LoyaltyCard, error) {
	q := tx.Resolve(ctx, s.db)
	query := `
		SELECT id, enrollment_id, balance, tier, version, active, created_at
		FROM loyalty_cards
		WHERE id = $1
	`
	return scanCard(q.QueryRowContext(ctx, query, uuid.UUID(cardID)))
}

func (s *Postgres) GetByEnrollment(ctx context.Context, enrollmentID id.EnrollmentID) (*models.LoyaltyCard, error) {
	q := tx.Resolve(ctx, s.db)
	query := `
		SELECT id, enrollment_id, balance, tier, version, active, created_at
		FROM loyalty_cards
		WHERE enrollment_id = $1
	`
	return scanCard(q.QueryRowContext(ctx, query, uuid.UUID(enrollmentID)))
}

func (s *Postgres) Deactivate(ctx context.Context, cardID id.CardID) error {
	q := tx.Resolve(ctx, s.db)
	res, err := q.ExecContext(ctx, `UPDATE loyalty_cards SET active = FALSE WHERE id = $1`, uuid.UUID(cardID))
	if err != nil {
		return fmt.Errorf("deactivate card: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate card rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (*models.LoyaltyCard, error) {
	var (
		cardID       uuid.UUID
		enrollmentID uuid.UUID
		card         models.LoyaltyCard
		tier         string
	)
	err := row.Scan(&cardID, &enrollmentID, &card.Balance, &tier, &card.Version, &card.Active, &card.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan card: %w", err)
	}
	card.ID = id.CardID(cardID)
	card.EnrollmentID = id.EnrollmentID(enrollmentID)
	card.Tier = models.Tier(tier)
	return &card, nil
}
