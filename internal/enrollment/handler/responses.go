package handler

import (
	"time"

	"loyaltycore/internal/enrollment/models"
	"loyaltycore/internal/enrollment/service"
)

// EnrollmentResponse is the wire form of an enrollment.
type EnrollmentResponse struct {
	EnrollmentID string    `json:"enrollmentId"`
	CustomerID   string    `json:"customerId"`
	ProgramID    string    `json:"programId"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// FromEnrollment converts an enrollment to its wire form.
func FromEnrollment(enrollment *models.Enrollment) EnrollmentResponse {
	return EnrollmentResponse{
		EnrollmentID: enrollment.ID.String(),
		CustomerID:   enrollment.CustomerID.String(),
		ProgramID:    enrollment.ProgramID.String(),
		Status:       string(enrollment.Status),
		CreatedAt:    enrollment.CreatedAt,
		UpdatedAt:    enrollment.UpdatedAt,
	}
}

// InviteResponse is the HTTP response body for POST /enrollments.
type InviteResponse struct {
	EnrollmentID      string    `json:"enrollmentId"`
	ApprovalRequestID string    `json:"approvalRequestId"`
	Status            string    `json:"status"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

// FromInvite converts an invite result to its wire form.
func FromInvite(result *service.InviteResult) InviteResponse {
	return InviteResponse{
		EnrollmentID:      result.Enrollment.ID.String(),
		ApprovalRequestID: result.Approval.ID.String(),
		Status:            string(result.Enrollment.Status),
		ExpiresAt:         result.Approval.ExpiresAt,
	}
}

// RespondResponse is the HTTP response body for POST /enrollments/{id}/respond.
// CardID is set only on acceptance.
type RespondResponse struct {
	EnrollmentID string `json:"enrollmentId"`
	Status       string `json:"status"`
	CardID       string `json:"cardId,omitempty"`
}

// FromRespond converts a respond result to its wire form.
func FromRespond(result *service.RespondResult) RespondResponse {
	out := RespondResponse{
		EnrollmentID: result.Enrollment.ID.String(),
		Status:       string(result.Enrollment.Status),
	}
	if result.Card != nil {
		out.CardID = result.Card.ID.String()
	}
	return out
}
