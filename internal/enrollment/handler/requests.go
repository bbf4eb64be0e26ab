package handler

import (
	"strings"

	id "loyaltycore/pkg/domain"
	dErrors "loyaltycore/pkg/domain-errors"
)

// InviteRequest is the HTTP request body for POST /enrollments. The customer
// is named either directly by id or by a signed customer payload scanned at
// the counter; exactly one of the two must be present.
type InviteRequest struct {
	CustomerID string `json:"customerId,omitempty"`
	QRPayload  string `json:"qrPayload,omitempty"`
	ProgramID  string `json:"programId"`

	// Parsed values (populated by Validate)
	parsedCustomerID id.CustomerID
	parsedProgramID  id.ProgramID
}

// Validate validates and parses the request. The QR payload, when present,
// is verified by the handler against the signing key; only the shape is
// checked here.
func (r *InviteRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request body is required")
	}

	r.CustomerID = strings.TrimSpace(r.CustomerID)
	r.QRPayload = strings.TrimSpace(r.QRPayload)
	if r.CustomerID == "" && r.QRPayload == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "customerId or qrPayload is required")
	}
	if r.CustomerID != "" && r.QRPayload != "" {
		return dErrors.New(dErrors.CodeInvalidInput, "customerId and qrPayload are mutually exclusive")
	}

	programID, err := id.ParseProgramID(r.ProgramID)
	if err != nil {
		return err
	}
	r.parsedProgramID = programID

	if r.CustomerID != "" {
		customerID, err := id.ParseCustomerID(r.CustomerID)
		if err != nil {
			return err
		}
		r.parsedCustomerID = customerID
	}
	return nil
}

// ParsedCustomerID returns the customer id parsed during Validate. Nil when
// the request carried a QR payload instead.
func (r *InviteRequest) ParsedCustomerID() id.CustomerID { return r.parsedCustomerID }

// ParsedProgramID returns the program id parsed during Validate.
func (r *InviteRequest) ParsedProgramID() id.ProgramID { return r.parsedProgramID }

// RespondRequest is the HTTP request body for POST /enrollments/{id}/respond.
type RespondRequest struct {
	Accept *bool `json:"accept"`
}

// Validate validates the request. Accept is a pointer so an absent field is
// distinguishable from an explicit decline.
func (r *RespondRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request body is required")
	}
	if r.Accept == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "accept is required")
	}
	return nil
}
