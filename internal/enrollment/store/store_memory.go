package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"loyaltycore/internal/enrollment/models"
	id "loyaltycore/pkg/domain"
	"loyaltycore/pkg/platform/sentinel"
)

// Memory is the in-memory enrollment store used in development and unit tests.
type Memory struct {
	mu          sync.Mutex
	enrollments map[id.EnrollmentID]*models.Enrollment
	approvals   map[id.ApprovalRequestID]*models.ApprovalRequest
}

// NewMemory constructs an empty in-memory enrollment store.
func NewMemory() *Memory {
	return &Memory{
		enrollments: make(map[id.EnrollmentID]*models.Enrollment),
		approvals:   make(map[id.ApprovalRequestID]*models.ApprovalRequest),
	}
}

func (s *Memory) CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.enrollments {
		if existing.CustomerID == enrollment.CustomerID &&
			existing.ProgramID == enrollment.ProgramID &&
			!existing.Status.Terminal() {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.enrollments[enrollment.ID] = enrollment.Clone()
	return nil
}

func (s *Memory) GetEnrollment(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	enrollment, ok := s.enrollments[enrollmentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return enrollment.Clone(), nil
}

func (s *Memory) FindOpenByPair(ctx context.Context, customerID id.CustomerID, programID id.ProgramID) (*models.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, enrollment := range s.enrollments {
		if enrollment.CustomerID == customerID &&
			enrollment.ProgramID == programID &&
			!enrollment.Status.Terminal() {
			return enrollment.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *Memory) TransitionEnrollment(ctx context.Context, enrollmentID id.EnrollmentID, from, to models.Status, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	enrollment, ok := s.enrollments[enrollmentID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if enrollment.Status != from || !models.CanTransition(from, to) {
		return sentinel.ErrInvalidState
	}
	enrollment.Status = to
	enrollment.UpdatedAt = now
	return nil
}

func (s *Memory) CreateApproval(ctx context.Context, approval *models.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.approvals[approval.ID] = approval.Clone()
	return nil
}

func (s *Memory) GetApproval(ctx context.Context, approvalID id.ApprovalRequestID) (*models.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	approval, ok := s.approvals[approvalID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return approval.Clone(), nil
}

func (s *Memory) FindPendingApprovalByEnrollment(ctx context.Context, enrollmentID id.EnrollmentID) (*models.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, approval := range s.approvals {
		if approval.EnrollmentID == enrollmentID && approval.Status == models.ApprovalPending {
			return approval.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *Memory) TransitionApproval(ctx context.Context, approvalID id.ApprovalRequestID, from, to models.ApprovalStatus, respondedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	approval, ok := s.approvals[approvalID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if approval.Status != from {
		return sentinel.ErrInvalidState
	}
	approval.Status = to
	t := respondedAt
	approval.RespondedAt = &t
	return nil
}

func (s *Memory) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*models.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []*models.ApprovalRequest
	for _, approval := range s.approvals {
		if approval.Status == models.ApprovalPending && approval.Expired(now) {
			stale = append(stale, approval.Clone())
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		return stale[i].ExpiresAt.Before(stale[j].ExpiresAt)
	})
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}
