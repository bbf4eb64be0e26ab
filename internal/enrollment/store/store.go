package store

import (
	"context"
	"time"

	"loyaltycore/internal/enrollment/models"
	id "loyaltycore/pkg/domain"
)

// Store persists enrollments and their approval requests.
//
// Status changes go through compare-and-swap transitions: the update applies
// only when the row still holds the expected `from` status, and a lost race
// surfaces sentinel.ErrInvalidState. This keeps duplicate responses and
// concurrent sweeps from double-applying a transition.
type Store interface {
	// CreateEnrollment inserts a new enrollment. Returns
	// sentinel.ErrAlreadyUsed when a non-terminal enrollment already
	// exists for the (customer, program) pair.
	CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error

	// GetEnrollment returns the enrollment or sentinel.ErrNotFound.
	GetEnrollment(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error)

	// FindOpenByPair returns the customer's non-terminal enrollment in the
	// program, or sentinel.ErrNotFound.
	FindOpenByPair(ctx context.Context, customerID id.CustomerID, programID id.ProgramID) (*models.Enrollment, error)

	// TransitionEnrollment moves the enrollment from one status to
	// another, or fails with sentinel.ErrInvalidState.
	TransitionEnrollment(ctx context.Context, enrollmentID id.EnrollmentID, from, to models.Status, now time.Time) error

	// CreateApproval inserts a new approval request.
	CreateApproval(ctx context.Context, approval *models.ApprovalRequest) error

	// GetApproval returns the approval request or sentinel.ErrNotFound.
	GetApproval(ctx context.Context, approvalID id.ApprovalRequestID) (*models.ApprovalRequest, error)

	// FindPendingApprovalByEnrollment returns the enrollment's pending
	// approval request, or sentinel.ErrNotFound.
	FindPendingApprovalByEnrollment(ctx context.Context, enrollmentID id.EnrollmentID) (*models.ApprovalRequest, error)

	// TransitionApproval moves the approval request from one status to
	// another, recording respondedAt, or fails with sentinel.ErrInvalidState.
	TransitionApproval(ctx context.Context, approvalID id.ApprovalRequestID, from, to models.ApprovalStatus, respondedAt time.Time) error

	// ListExpiredPending returns pending approval requests whose TTL
	// elapsed before now, oldest first.
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*models.ApprovalRequest, error)
}

// Atomic provides the transactional boundary for multi-step workflow
// mutations: accepting an approval must transition the enrollment and create
// the card in one unit, so a crash can never leave an ACTIVE enrollment
// without a card or a card without an ACTIVE enrollment.
type Atomic interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
