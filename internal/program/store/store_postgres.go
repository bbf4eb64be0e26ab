package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"loyaltycore/internal/program/models"
	id "loyaltycore/pkg/domain"
	"loyaltycore/pkg/platform/sentinel"
	"loyaltycore/pkg/platform/tx"
)

const pqUniqueViolation = "23505"

// Postgres is the production program store.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a Postgres-backed program store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Create(ctx context.Context, program *models.Program) error {
	q := tx.Resolve(ctx, s.db)
	_, err := q.ExecContext(ctx, `
		INSERT INTO loyalty_programs (id, business_id, name, created_at)
		VALUES ($1, $2, $3, $4)`,
		program.ID.String(), program.BusinessID.String(), program.Name, program.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert program: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, programID id.ProgramID) (*models.Program, error) {
	q := tx.Resolve(ctx, s.db)
	row := q.QueryRowContext(ctx, `
		SELECT id, business_id, name, created_at
		FROM loyalty_programs WHERE id = $1`, programID.String())
	return scanProgram(row)
}

func (s *Postgres) ListByBusiness(ctx context.Context, businessID id.BusinessID) ([]*models.Program, error) {
	q := tx.Resolve(ctx, s.db)
	rows, err := q.QueryContext(ctx, `
		SELECT id, business_id, name, created_at
		FROM loyalty_programs
		WHERE business_id = $1
		ORDER BY created_at`, businessID.String())
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	defer rows.Close()

	var out []*models.Program
	for rows.Next() {
		program, err := scanProgramRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, program)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProgram(row *sql.Row) (*models.Program, error) {
	program, err := scanProgramRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return program, err
}

func scanProgramRow(row rowScanner) (*models.Program, error) {
	var (
		program              models.Program
		rawID, rawBusinessID string
	)
	if err := row.Scan(&rawID, &rawBusinessID, &program.Name, &program.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if program.ID, err = id.ParseProgramID(rawID); err != nil {
		return nil, fmt.Errorf("scan program id: %w", err)
	}
	if program.BusinessID, err = id.ParseBusinessID(rawBusinessID); err != nil {
		return nil, fmt.Errorf("scan business id: %w", err)
	}
	return &program, nil
}
