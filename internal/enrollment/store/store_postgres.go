package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"loyaltycore/internal/enrollment/models"
	id "loyaltycore/pkg/domain"
	"loyaltycore/pkg/platform/sentinel"
	"loyaltycore/pkg/platform/tx"
)

const pqUniqueViolation = "23505"

// Postgres persists enrollments and approval requests. The partial unique
// index on (customer_id, program_id) for non-terminal statuses enforces the
// at-most-one-open-enrollment invariant at the storage layer.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a Postgres-backed enrollment store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	q := tx.Resolve(ctx, s.db)
	_, err := q.ExecContext(ctx, `
		INSERT INTO enrollments (id, customer_id, program_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		uuid.UUID(enrollment.ID),
		uuid.UUID(enrollment.CustomerID),
		uuid.UUID(enrollment.ProgramID),
		string(enrollment.Status),
		enrollment.CreatedAt,
		enrollment.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

func (s *Postgres) GetEnrollment(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error) {
	q := tx.Resolve(ctx, s.db)
	query := `
		SELECT id, customer_id, program_id, status, created_at, updated_at
		FROM enrollments
		WHERE id = $1
	`
	return scanEnrollment(q.QueryRowContext(ctx, query, uuid.UUID(enrollmentID)))
}

func (s *Postgres) FindOpenByPair(ctx context.Context, customerID id.CustomerID, programID id.ProgramID) (*models.Enrollment, error) {
	q := tx.Resolve(ctx, s.db)
	query := `
		SELECT id, customer_id, program_id, status, created_at, updated_at
		FROM enrollments
		WHERE customer_id = $1 AND program_id = $2
		  AND status NOT IN ($3, $4)
	`
	return scanEnrollment(q.QueryRowContext(ctx, query,
		uuid.UUID(customerID), uuid.UUID(programID),
		string(models.StatusDeclined), string(models.StatusRevoked)))
}

func (s *Postgres) TransitionEnrollment(ctx context.Context, enrollmentID id.EnrollmentID, from, to models.Status, now time.Time) error {
	if !models.CanTransition(from, to) {
		return sentinel.ErrInvalidState
	}
	q := tx.Resolve(ctx, s.db)
	res, err := q.ExecContext(ctx, `
		UPDATE enrollments
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status = $4
	`, uuid.UUID(enrollmentID), string(to), now, string(from))
	if err != nil {
		return fmt.Errorf("transition enrollment: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition enrollment rows affected: %w", err)
	}
	if rows == 0 {
		if _, getErr := s.GetEnrollment(ctx, enrollmentID); errors.Is(getErr, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *Postgres) CreateApproval(ctx context.Context, approval *models.ApprovalRequest) error {
	q := tx.Resolve(ctx, s.db)
	_, err := q.ExecContext(ctx, `
		INSERT INTO approval_requests (id, enrollment_id, status, requested_at, responded_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		uuid.UUID(approval.ID),
		uuid.UUID(approval.EnrollmentID),
		string(approval.Status),
		approval.RequestedAt,
		approval.RespondedAt,
		approval.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("create approval request: %w", err)
	}
	return nil
}

func (s *Postgres) GetApproval(ctx context.Context, approvalID id.ApprovalRequestID) (*models.ApprovalRequest, error) {
	q := tx.Resolve(ctx, s.db)
	query := `
		SELECT id, enrollment_id, status, requested_at, responded_at, expires_at
		FROM approval_requests
		WHERE id = $1
	`
	return scanApproval(q.QueryRowContext(ctx, query, uuid.UUID(approvalID)))
}

func (s *Postgres) FindPendingApprovalByEnrollment(ctx context.Context, enrollmentID id.EnrollmentID) (*models.ApprovalRequest, error) {
	q := tx.Resolve(ctx, s.db)
	query := `
		SELECT id, enrollment_id, status, requested_at, responded_at, expires_at
		FROM approval_requests
		WHERE enrollment_id = $1 AND status = $2
		ORDER BY requested_at DESC
		LIMIT 1
	`
	return scanApproval(q.QueryRowContext(ctx, query, uuid.UUID(enrollmentID), string(models.ApprovalPending)))
}

func (s *Postgres) TransitionApproval(ctx context.Context, approvalID id.ApprovalRequestID, from, to models.ApprovalStatus, respondedAt time.Time) error {
	q := tx.Resolve(ctx, s.db)
	res, err := q.ExecContext(ctx, `
		UPDATE approval_requests
		SET status = $2, responded_at = $3
		WHERE id = $1 AND status = $4
	`, uuid.UUID(approvalID), string(to), respondedAt, string(from))
	if err != nil {
		return fmt.Errorf("transition approval: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition approval rows affected: %w", err)
	}
	if rows == 0 {
		if _, getErr := s.GetApproval(ctx, approvalID); errors.Is(getErr, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *Postgres) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*models.ApprovalRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	q := tx.Resolve(ctx, s.db)
	rows, err := q.QueryContext(ctx, `
		SELECT id, enrollment_id, status, requested_at, responded_at, expires_at
		FROM approval_requests
		WHERE status = $1 AND expires_at < $2
		ORDER BY expires_at
		LIMIT $3
	`, string(models.ApprovalPending), now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired approvals: %w", err)
	}
	defer rows.Close()

	var stale []*models.ApprovalRequest
	for rows.Next() {
		approval, err := scanApprovalRow(rows)
		if err != nil {
			return nil, err
		}
		stale = append(stale, approval)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired approvals: %w", err)
	}
	return stale, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEnrollment(row rowScanner) (*models.Enrollment, error) {
	var (
		enrollmentID uuid.UUID
		customerID   uuid.UUID
		programID    uuid.UUID
		status       string
		enrollment   models.Enrollment
	)
	err := row.Scan(&enrollmentID, &customerID, &programID, &status, &enrollment.CreatedAt, &enrollment.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan enrollment: %w", err)
	}
	enrollment.ID = id.EnrollmentID(enrollmentID)
	enrollment.CustomerID = id.CustomerID(customerID)
	enrollment.ProgramID = id.ProgramID(programID)
	enrollment.Status = models.Status(status)
	return &enrollment, nil
}

func scanApproval(row rowScanner) (*models.ApprovalRequest, error) {
	approval, err := scanApprovalRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return approval, nil
}

func scanApprovalRow(row rowScanner) (*models.ApprovalRequest, error) {
	var (
		approvalID   uuid.UUID
		enrollmentID uuid.UUID
		status       string
		respondedAt  sql.NullTime
		approval     models.ApprovalRequest
	)
	err := row.Scan(&approvalID, &enrollmentID, &status, &approval.RequestedAt, &respondedAt, &approval.ExpiresAt)
	if err != nil {
		return nil, err
	}
	approval.ID = id.ApprovalRequestID(approvalID)
	approval.EnrollmentID = id.EnrollmentID(enrollmentID)
	approval.Status = models.ApprovalStatus(status)
	if respondedAt.Valid {
		t := respondedAt.Time
		approval.RespondedAt = &t
	}
	return &approval, nil
}
