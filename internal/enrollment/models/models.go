package models

import (
	"time"

	id "loyaltycore/pkg/domain"
)

// Status is the enrollment lifecycle state. Status lives in exactly one
// place: this field, with transitions mediated only by the enrollment
// workflow service.
type Status string

const (
	StatusInvited         Status = "INVITED"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusActive          Status = "ACTIVE"
	StatusDeclined        Status = "DECLINED"
	StatusRevoked         Status = "REVOKED"
)

// legalTransitions encodes the state machine:
// INVITED -> PENDING_APPROVAL -> {ACTIVE | DECLINED}; ACTIVE -> REVOKED.
var legalTransitions = map[Status][]Status{
	StatusInvited:         {StatusPendingApproval},
	StatusPendingApproval: {StatusActive, StatusDeclined},
	StatusActive:          {StatusRevoked},
}

// CanTransition reports whether from -> to is a legal state change.
func CanTransition(from, to Status) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusDeclined || s == StatusRevoked
}

// Enrollment is the relationship between a customer and a loyalty program,
// independent of the card itself.
type Enrollment struct {
	ID         id.EnrollmentID
	CustomerID id.CustomerID
	ProgramID  id.ProgramID
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Clone returns a copy so in-memory stores never leak shared pointers.
func (e *Enrollment) Clone() *Enrollment {
	if e == nil {
		return nil
	}
	copied := *e
	return &copied
}

// ApprovalStatus is the approval request lifecycle state.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalAccepted ApprovalStatus = "ACCEPTED"
	ApprovalDeclined ApprovalStatus = "DECLINED"
	ApprovalExpired  ApprovalStatus = "EXPIRED"
)

// ApprovalRequest represents a pending enrollment decision. Unanswered
// requests expire once past ExpiresAt; the background sweep transitions them.
type ApprovalRequest struct {
	ID           id.ApprovalRequestID
	EnrollmentID id.EnrollmentID
	Status       ApprovalStatus
	RequestedAt  time.Time
	RespondedAt  *time.Time
	ExpiresAt    time.Time
}

// Expired reports whether the request's TTL has elapsed at now.
func (r *ApprovalRequest) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Clone returns a copy so in-memory stores never leak shared pointers.
func (r *ApprovalRequest) Clone() *ApprovalRequest {
	if r == nil {
		return nil
	}
	copied := *r
	if r.RespondedAt != nil {
		t := *r.RespondedAt
		copied.RespondedAt = &t
	}
	return &copied
}
