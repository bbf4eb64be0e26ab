package domain

import (
	"github.com/google/uuid"

	dErrors "loyaltycore/pkg/domain-errors"
)

// Typed UUID wrappers for every entity this core references. Distinct types
// prevent cross-entity assignment at compile time: a CardID can never be
// passed where an EnrollmentID is expected.
type (
	// CustomerID references a customer owned by the identity collaborator.
	CustomerID uuid.UUID
	// BusinessID references a business owned by the identity collaborator.
	BusinessID uuid.UUID
	// ProgramID identifies a loyalty program.
	ProgramID uuid.UUID
	// EnrollmentID identifies a customer-program enrollment.
	EnrollmentID uuid.UUID
	// CardID identifies a loyalty card.
	CardID uuid.UUID
	// TransactionID identifies an immutable point transaction.
	TransactionID uuid.UUID
	// ApprovalRequestID identifies a pending enrollment decision.
	ApprovalRequestID uuid.UUID
)

// parseUUID enforces the shared invariant: IDs must be valid, non-nil UUIDs.
func parseUUID(s, entity string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, entity+" id must not be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+entity+" id")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, entity+" id must not be the nil UUID")
	}
	return u, nil
}

func ParseCustomerID(s string) (CustomerID, error) {
	u, err := parseUUID(s, "customer")
	return CustomerID(u), err
}

func ParseBusinessID(s string) (BusinessID, error) {
	u, err := parseUUID(s, "business")
	return BusinessID(u), err
}

func ParseProgramID(s string) (ProgramID, error) {
	u, err := parseUUID(s, "program")
	return ProgramID(u), err
}

func ParseEnrollmentID(s string) (EnrollmentID, error) {
	u, err := parseUUID(s, "enrollment")
	return EnrollmentID(u), err
}

func ParseCardID(s string) (CardID, error) {
	u, err := parseUUID(s, "card")
	return CardID(u), err
}

func ParseTransactionID(s string) (TransactionID, error) {
	u, err := parseUUID(s, "transaction")
	return TransactionID(u), err
}

func ParseApprovalRequestID(s string) (ApprovalRequestID, error) {
	u, err := parseUUID(s, "approval request")
	return ApprovalRequestID(u), err
}

func NewCustomerID() CustomerID               { return CustomerID(uuid.New()) }
func NewBusinessID() BusinessID               { return BusinessID(uuid.New()) }
func NewProgramID() ProgramID                 { return ProgramID(uuid.New()) }
func NewEnrollmentID() EnrollmentID           { return EnrollmentID(uuid.New()) }
func NewCardID() CardID                       { return CardID(uuid.New()) }
func NewTransactionID() TransactionID         { return TransactionID(uuid.New()) }
func NewApprovalRequestID() ApprovalRequestID { return ApprovalRequestID(uuid.New()) }

func (id CustomerID) String() string        { return uuid.UUID(id).String() }
func (id BusinessID) String() string        { return uuid.UUID(id).String() }
func (id ProgramID) String() string         { return uuid.UUID(id).String() }
func (id EnrollmentID) String() string      { return uuid.UUID(id).String() }
func (id CardID) String() string            { return uuid.UUID(id).String() }
func (id TransactionID) String() string     { return uuid.UUID(id).String() }
func (id ApprovalRequestID) String() string { return uuid.UUID(id).String() }

func (id CustomerID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id BusinessID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id ProgramID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id EnrollmentID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id CardID) IsNil() bool            { return uuid.UUID(id) == uuid.Nil }
func (id TransactionID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ApprovalRequestID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
