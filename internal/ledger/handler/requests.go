package handler

import (
	"strings"

	id "loyaltycore/pkg/domain"
	dErrors "loyaltycore/pkg/domain-errors"
)

const (
	maxSourceLen         = 100
	maxIdempotencyKeyLen = 200
)

// ApplyRequest is the HTTP request body for POST /transactions.
type ApplyRequest struct {
	CardID         string `json:"cardId"`
	Delta          int64  `json:"delta"`
	Source         string `json:"source"`
	IdempotencyKey string `json:"idempotencyKey"`

	// Parsed values (populated by Validate)
	parsedCardID id.CardID
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *ApplyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request body is required")
	}
	if r.Delta == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "delta must be non-zero")
	}

	r.Source = strings.TrimSpace(r.Source)
	if r.Source == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "source is required")
	}
	if len(r.Source) > maxSourceLen {
		return dErrors.New(dErrors.CodeInvalidInput, "source is too long")
	}

	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)
	if r.IdempotencyKey == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "idempotencyKey is required")
	}
	if len(r.IdempotencyKey) > maxIdempotencyKeyLen {
		return dErrors.New(dErrors.CodeInvalidInput, "idempotencyKey is too long")
	}

	cardID, err := id.ParseCardID(r.CardID)
	if err != nil {
		return err
	}
	r.parsedCardID = cardID
	return nil
}

// ParsedCardID returns the card id parsed during Validate.
func (r *ApplyRequest) ParsedCardID() id.CardID { return r.parsedCardID }

// ScanRequest is the HTTP request body for POST /scan. The card is carried
// inside the signed payload, never named directly.
type ScanRequest struct {
	Payload        string `json:"payload"`
	Delta          int64  `json:"delta"`
	Source         string `json:"source"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// Validate validates the request. The payload itself is verified later
// against the signing key; only its presence is checked here.
func (r *ScanRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request body is required")
	}
	if strings.TrimSpace(r.Payload) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "payload is required")
	}
	if r.Delta == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "delta must be non-zero")
	}

	r.Source = strings.TrimSpace(r.Source)
	if r.Source == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "source is required")
	}
	if len(r.Source) > maxSourceLen {
		return dErrors.New(dErrors.CodeInvalidInput, "source is too long")
	}

	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)
	if r.IdempotencyKey == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "idempotencyKey is required")
	}
	if len(r.IdempotencyKey) > maxIdempotencyKeyLen {
		return dErrors.New(dErrors.CodeInvalidInput, "idempotencyKey is too long")
	}
	return nil
}
