package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	cardservice "loyaltycore/internal/card/service"
	cardstore "loyaltycore/internal/card/store"
	"loyaltycore/internal/enrollment/models"
	"loyaltycore/internal/enrollment/store"
	"loyaltycore/internal/notify"
	programmodels "loyaltycore/internal/program/models"
	programservice "loyaltycore/internal/program/service"
	programstore "loyaltycore/internal/program/store"
	id "loyaltycore/pkg/domain"
	dErrors "loyaltycore/pkg/domain-errors"
	"loyaltycore/pkg/requestcontext"
)

const testTTL = 72 * time.Hour

// capturingPublisher records published events.
type capturingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *capturingPublisher) Publish(_ context.Context, event notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) ByType(t notify.EventType) []notify.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []notify.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type EnrollmentServiceSuite struct {
	suite.Suite
	store     *store.Memory
	cards     *cardservice.Service
	cardStore *cardstore.Memory
	publisher *capturingPublisher
	service   *Service
	programID id.ProgramID
}

func TestEnrollmentServiceSuite(t *testing.T) {
	suite.Run(t, new(EnrollmentServiceSuite))
}

func (s *EnrollmentServiceSuite) SetupTest() {
	s.store = store.NewMemory()
	s.cardStore = cardstore.NewMemory()
	s.cards = cardservice.New(s.cardStore, nil)
	s.publisher = &capturingPublisher{}

	programs := programstore.NewMemory()
	program := &programmodels.Program{
		ID:         id.NewProgramID(),
		BusinessID: id.NewBusinessID(),
		Name:       "Coffee Club",
		CreatedAt:  time.Now(),
	}
	s.Require().NoError(programs.Create(context.Background(), program))
	s.programID = program.ID

	s.service = New(s.store, store.NewMemoryAtomic(), s.cards, programservice.New(programs), testTTL,
		WithPublisher(s.publisher),
	)
}

func (s *EnrollmentServiceSuite) invite(ctx context.Context) *InviteResult {
	result, err := s.service.Invite(ctx, id.NewCustomerID(), s.programID)
	s.Require().NoError(err)
	return result
}

func (s *EnrollmentServiceSuite) TestInvite() {
	ctx := context.Background()

	s.Run("creates a pending enrollment with an approval request", func() {
		customerID := id.NewCustomerID()
		result, err := s.service.Invite(ctx, customerID, s.programID)
		s.Require().NoError(err)
		s.Equal(models.StatusPendingApproval, result.Enrollment.Status)
		s.Equal(models.ApprovalPending, result.Approval.Status)
		s.Equal(result.Enrollment.ID, result.Approval.EnrollmentID)

		events := s.publisher.ByType(notify.EventEnrollmentRequested)
		s.Require().Len(events, 1)
		s.Equal(customerID.String(), events[0].TargetID)
	})

	s.Run("second invite for an open pair fails with conflict", func() {
		customerID := id.NewCustomerID()
		_, err := s.service.Invite(ctx, customerID, s.programID)
		s.Require().NoError(err)

		_, err = s.service.Invite(ctx, customerID, s.programID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown program fails with not found", func() {
		_, err := s.service.Invite(ctx, id.NewCustomerID(), id.NewProgramID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("declined enrollment frees the pair for re-invitation", func() {
		customerID := id.NewCustomerID()
		first, err := s.service.Invite(ctx, customerID, s.programID)
		s.Require().NoError(err)
		_, err = s.service.Respond(ctx, first.Approval.ID, false)
		s.Require().NoError(err)

		_, err = s.service.Invite(ctx, customerID, s.programID)
		s.NoError(err)
	})
}

func (s *EnrollmentServiceSuite) TestRespond() {
	ctx := context.Background()

	s.Run("accept activates the enrollment and mints exactly one card", func() {
		result := s.invite(ctx)

		responded, err := s.service.Respond(ctx, result.Approval.ID, true)
		s.Require().NoError(err)
		s.Equal(models.StatusActive, responded.Enrollment.Status)
		s.Require().NotNil(responded.Card)
		s.Equal(int64(0), responded.Card.Balance)

		events := s.publisher.ByType(notify.EventEnrollmentAccepted)
		s.Require().Len(events, 1)
		s.Equal(responded.Enrollment.CustomerID.String(), events[0].TargetID)
	})

	s.Run("decline closes the enrollment without a card", func() {
		result := s.invite(ctx)

		responded, err := s.service.Respond(ctx, result.Approval.ID, false)
		s.Require().NoError(err)
		s.Equal(models.StatusDeclined, responded.Enrollment.Status)
		s.Nil(responded.Card)

		_, err = s.cardStore.GetByEnrollment(ctx, result.Enrollment.ID)
		s.Error(err)
	})

	s.Run("second response fails with conflict", func() {
		result := s.invite(ctx)
		_, err := s.service.Respond(ctx, result.Approval.ID, true)
		s.Require().NoError(err)

		_, err = s.service.Respond(ctx, result.Approval.ID, false)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("expired request fails with conflict", func() {
		result := s.invite(ctx)

		late := requestcontext.WithTime(ctx, time.Now().Add(testTTL+time.Hour))
		_, err := s.service.Respond(late, result.Approval.ID, true)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown approval fails with not found", func() {
		_, err := s.service.Respond(ctx, id.NewApprovalRequestID(), true)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *EnrollmentServiceSuite) TestRevoke() {
	ctx := context.Background()

	s.Run("revokes an active enrollment and deactivates its card", func() {
		result := s.invite(ctx)
		responded, err := s.service.Respond(ctx, result.Approval.ID, true)
		s.Require().NoError(err)

		revoked, err := s.service.Revoke(ctx, result.Enrollment.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusRevoked, revoked.Status)

		card, err := s.cardStore.Get(ctx, responded.Card.ID)
		s.Require().NoError(err)
		s.False(card.Active)

		s.Len(s.publisher.ByType(notify.EventEnrollmentRevoked), 1)
	})

	s.Run("revoking a pending enrollment fails with conflict", func() {
		result := s.invite(ctx)
		_, err := s.service.Revoke(ctx, result.Enrollment.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown enrollment fails with not found", func() {
		_, err := s.service.Revoke(ctx, id.NewEnrollmentID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *EnrollmentServiceSuite) TestExpireStale() {
	ctx := context.Background()

	s.Run("expires overdue requests and declines their enrollments", func() {
		first := s.invite(ctx)
		second := s.invite(ctx)

		late := requestcontext.WithTime(ctx, time.Now().Add(testTTL+time.Hour))
		expired, err := s.service.ExpireStale(late, 10)
		s.Require().NoError(err)
		s.Equal(2, expired)

		for _, result := range []*InviteResult{first, second} {
			enrollment, err := s.store.GetEnrollment(ctx, result.Enrollment.ID)
			s.Require().NoError(err)
			s.Equal(models.StatusDeclined, enrollment.Status)

			approval, err := s.store.GetApproval(ctx, result.Approval.ID)
			s.Require().NoError(err)
			s.Equal(models.ApprovalExpired, approval.Status)
		}
		s.Len(s.publisher.ByType(notify.EventEnrollmentExpired), 2)
	})

	s.Run("fresh requests are untouched", func() {
		result := s.invite(ctx)

		expired, err := s.service.ExpireStale(ctx, 10)
		s.Require().NoError(err)
		s.Zero(expired)

		approval, err := s.store.GetApproval(ctx, result.Approval.ID)
		s.Require().NoError(err)
		s.Equal(models.ApprovalPending, approval.Status)
	})

	s.Run("answered request is left alone by a late sweep", func() {
		result := s.invite(ctx)
		_, err := s.service.Respond(ctx, result.Approval.ID, true)
		s.Require().NoError(err)

		late := requestcontext.WithTime(ctx, time.Now().Add(testTTL+time.Hour))
		_, err = s.service.ExpireStale(late, 10)
		s.Require().NoError(err)

		enrollment, err := s.store.GetEnrollment(ctx, result.Enrollment.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusActive, enrollment.Status)
	})
}
