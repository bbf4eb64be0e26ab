// Package service implements the enrollment workflow: the single authority
// over the enrollment state machine. Invitations, responses, revocations and
// expiry all flow through here; nothing else mutates an enrollment's status.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	cardmodels "loyaltycore/internal/card/models"
	"loyaltycore/internal/enrollment/metrics"
	"loyaltycore/internal/enrollment/models"
	"loyaltycore/internal/enrollment/store"
	"loyaltycore/internal/notify"
	id "loyaltycore/pkg/domain"
	dErrors "loyaltycore/pkg/domain-errors"
	"loyaltycore/pkg/platform/sentinel"
	"loyaltycore/pkg/requestcontext"
)

// CardRegistry is the subset of the card service the workflow drives.
// Acceptance mints the card; revocation deactivates it.
type CardRegistry interface {
	EnsureCard(ctx context.Context, enrollmentID id.EnrollmentID) (*cardmodels.LoyaltyCard, error)
	Deactivate(ctx context.Context, enrollmentID id.EnrollmentID) error
}

// ProgramDirectory answers whether a loyalty program exists. Invitations into
// unknown programs are rejected up front.
type ProgramDirectory interface {
	Exists(ctx context.Context, programID id.ProgramID) (bool, error)
}

// Service is the enrollment workflow.
type Service struct {
	store       store.Store
	atomic      store.Atomic
	cards       CardRegistry
	programs    ProgramDirectory
	publisher   notify.Publisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
	approvalTTL time.Duration
}

// Option configures optional Service dependencies.
type Option func(*Service)

// WithLogger sets the workflow logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the workflow metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithPublisher sets the event publisher. Without one, transitions still
// apply but emit nothing.
func WithPublisher(p notify.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// New constructs the enrollment workflow service. approvalTTL bounds how long
// an approval request may stay unanswered.
func New(st store.Store, atomic store.Atomic, cards CardRegistry, programs ProgramDirectory, approvalTTL time.Duration, opts ...Option) *Service {
	s := &Service{
		store:       st,
		atomic:      atomic,
		cards:       cards,
		programs:    programs,
		approvalTTL: approvalTTL,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InviteResult is what Invite returns to the caller.
type InviteResult struct {
	Enrollment *models.Enrollment
	Approval   *models.ApprovalRequest
}

// Invite creates an enrollment for the (customer, program) pair and
// immediately moves it to PENDING_APPROVAL with a fresh approval request.
// A customer holds at most one open enrollment per program; a second invite
// while one is open fails with a conflict.
func (s *Service) Invite(ctx context.Context, customerID id.CustomerID, programID id.ProgramID) (*InviteResult, error) {
	if customerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "customer id is required")
	}
	if programID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "program id is required")
	}

	exists, err := s.programs.Exists(ctx, programID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "check program")
	}
	if !exists {
		return nil, dErrors.New(dErrors.CodeNotFound, "program not found")
	}

	now := requestcontext.Now(ctx)
	enrollment := &models.Enrollment{
		ID:         id.NewEnrollmentID(),
		CustomerID: customerID,
		ProgramID:  programID,
		Status:     models.StatusInvited,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	approval := &models.ApprovalRequest{
		ID:           id.NewApprovalRequestID(),
		EnrollmentID: enrollment.ID,
		Status:       models.ApprovalPending,
		RequestedAt:  now,
		ExpiresAt:    now.Add(s.approvalTTL),
	}

	err = s.atomic.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateEnrollment(ctx, enrollment); err != nil {
			return err
		}
		if err := s.store.TransitionEnrollment(ctx, enrollment.ID, models.StatusInvited, models.StatusPendingApproval, now); err != nil {
			return err
		}
		return s.store.CreateApproval(ctx, approval)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "customer already enrolled in program")
		}
		return nil, s.translate(err, "create enrollment")
	}
	enrollment.Status = models.StatusPendingApproval

	s.metrics.IncrementInvites()
	s.emit(ctx, notify.Event{
		Type:      notify.EventEnrollmentRequested,
		TargetID:  customerID.String(),
		DedupeKey: "enrollment_requested:" + enrollment.ID.String(),
		Payload: map[string]any{
			"enrollment_id":       enrollment.ID.String(),
			"program_id":          programID.String(),
			"approval_request_id": approval.ID.String(),
			"expires_at":          approval.ExpiresAt,
		},
		OccurredAt: now,
	})

	return &InviteResult{Enrollment: enrollment, Approval: approval}, nil
}

// RespondResult is what Respond returns to the caller. Card is set only on
// acceptance.
type RespondResult struct {
	Enrollment *models.Enrollment
	Card       *cardmodels.LoyaltyCard
}

// Respond records the customer's decision on a pending approval request.
// Accepting activates the enrollment and mints its card in one atomic unit;
// declining closes the enrollment. A second response, or a response after
// the request expired, fails with a conflict.
func (s *Service) Respond(ctx context.Context, approvalID id.ApprovalRequestID, accept bool) (*RespondResult, error) {
	start := time.Now()
	defer s.metrics.ObserveRespond(start)

	approval, err := s.store.GetApproval(ctx, approvalID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "approval request not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get approval request")
	}
	if approval.Status != models.ApprovalPending {
		return nil, dErrors.New(dErrors.CodeConflict, "approval request already answered")
	}

	now := requestcontext.Now(ctx)
	if approval.Expired(now) {
		return nil, dErrors.New(dErrors.CodeConflict, "approval request expired")
	}

	approvalTo := models.ApprovalDeclined
	enrollmentTo := models.StatusDeclined
	if accept {
		approvalTo = models.ApprovalAccepted
		enrollmentTo = models.StatusActive
	}

	var card *cardmodels.LoyaltyCard
	err = s.atomic.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.TransitionApproval(ctx, approvalID, models.ApprovalPending, approvalTo, now); err != nil {
			return err
		}
		if err := s.store.TransitionEnrollment(ctx, approval.EnrollmentID, models.StatusPendingApproval, enrollmentTo, now); err != nil {
			return err
		}
		if accept {
			created, err := s.cards.EnsureCard(ctx, approval.EnrollmentID)
			if err != nil {
				return err
			}
			card = created
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil, dErrors.New(dErrors.CodeConflict, "approval request already answered")
		}
		return nil, s.translate(err, "respond to approval request")
	}

	enrollment, err := s.store.GetEnrollment(ctx, approval.EnrollmentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get enrollment")
	}

	eventType := notify.EventEnrollmentDeclined
	dedupe := "enrollment_declined:"
	if accept {
		eventType = notify.EventEnrollmentAccepted
		dedupe = "enrollment_accepted:"
		s.metrics.IncrementAcceptances()
	} else {
		s.metrics.IncrementDeclines()
	}

	payload := map[string]any{
		"enrollment_id": enrollment.ID.String(),
		"program_id":    enrollment.ProgramID.String(),
	}
	if card != nil {
		payload["card_id"] = card.ID.String()
	}
	s.emit(ctx, notify.Event{
		Type:       eventType,
		TargetID:   enrollment.CustomerID.String(),
		DedupeKey:  dedupe + enrollment.ID.String(),
		Payload:    payload,
		OccurredAt: now,
	})

	return &RespondResult{Enrollment: enrollment, Card: card}, nil
}

// Revoke terminates an ACTIVE enrollment and deactivates its card. The card
// record and its transaction history survive; only new activity is blocked.
func (s *Service) Revoke(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error) {
	enrollment, err := s.store.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "enrollment not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get enrollment")
	}
	if enrollment.Status != models.StatusActive {
		return nil, dErrors.New(dErrors.CodeConflict, "enrollment is not active")
	}

	now := requestcontext.Now(ctx)
	err = s.atomic.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.TransitionEnrollment(ctx, enrollmentID, models.StatusActive, models.StatusRevoked, now); err != nil {
			return err
		}
		return s.cards.Deactivate(ctx, enrollmentID)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil, dErrors.New(dErrors.CodeConflict, "enrollment is not active")
		}
		return nil, s.translate(err, "revoke enrollment")
	}
	enrollment.Status = models.StatusRevoked
	enrollment.UpdatedAt = now

	s.metrics.IncrementRevocations()
	s.emit(ctx, notify.Event{
		Type:      notify.EventEnrollmentRevoked,
		TargetID:  enrollment.CustomerID.String(),
		DedupeKey: "enrollment_revoked:" + enrollmentID.String(),
		Payload: map[string]any{
			"enrollment_id": enrollmentID.String(),
			"program_id":    enrollment.ProgramID.String(),
		},
		OccurredAt: now,
	})

	return enrollment, nil
}

// GetEnrollment returns the enrollment snapshot.
func (s *Service) GetEnrollment(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error) {
	enrollment, err := s.store.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "enrollment not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get enrollment")
	}
	return enrollment, nil
}

// PendingApproval returns the enrollment's open approval request, used by
// the response endpoint to resolve an enrollment id to the request being
// answered.
func (s *Service) PendingApproval(ctx context.Context, enrollmentID id.EnrollmentID) (*models.ApprovalRequest, error) {
	approval, err := s.store.FindPendingApprovalByEnrollment(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no pending approval request")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "find pending approval")
	}
	return approval, nil
}

// ExpireStale sweeps approval requests whose TTL elapsed, expiring the
// request and declining its enrollment. Each pair of transitions is guarded
// by compare-and-swap, so a response racing the sweep wins on exactly one
// side. Returns the number of requests expired.
func (s *Service) ExpireStale(ctx context.Context, batchSize int) (int, error) {
	now := requestcontext.Now(ctx)
	stale, err := s.store.ListExpiredPending(ctx, now, batchSize)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "list expired approvals")
	}

	expired := 0
	for _, approval := range stale {
		err := s.atomic.RunInTx(ctx, func(ctx context.Context) error {
			if err := s.store.TransitionApproval(ctx, approval.ID, models.ApprovalPending, models.ApprovalExpired, now); err != nil {
				return err
			}
			return s.store.TransitionEnrollment(ctx, approval.EnrollmentID, models.StatusPendingApproval, models.StatusDeclined, now)
		})
		if err != nil {
			// Lost the race against a concurrent response; that
			// response already settled the request.
			if errors.Is(err, sentinel.ErrInvalidState) {
				continue
			}
			return expired, s.translate(err, "expire approval request")
		}
		expired++
		s.metrics.IncrementExpirations()

		enrollment, err := s.store.GetEnrollment(ctx, approval.EnrollmentID)
		if err != nil {
			s.logger.Warn("expired approval but could not load enrollment for event",
				"approval_request_id", approval.ID.String(), "error", err)
			continue
		}
		s.emit(ctx, notify.Event{
			Type:      notify.EventEnrollmentExpired,
			TargetID:  enrollment.CustomerID.String(),
			DedupeKey: "enrollment_expired:" + enrollment.ID.String(),
			Payload: map[string]any{
				"enrollment_id":       enrollment.ID.String(),
				"program_id":          enrollment.ProgramID.String(),
				"approval_request_id": approval.ID.String(),
			},
			OccurredAt: now,
		})
	}
	return expired, nil
}

// emit publishes an event if a publisher is configured. Emission failures
// are logged, never propagated: the state change has already committed.
func (s *Service) emit(ctx context.Context, event notify.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish enrollment event", "type", string(event.Type), "error", err)
	}
}

func (s *Service) translate(err error, op string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), dErrors.HasCode(err, dErrors.CodeTimeout):
		return dErrors.Wrap(err, dErrors.CodeTimeout, op+" timed out")
	case dErrors.HasCode(err, dErrors.CodeConflict):
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, op)
	}
}
