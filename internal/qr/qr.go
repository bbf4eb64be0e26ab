// Package qr signs and validates the QR payloads used for in-person
// enrollment and card scans. Payloads are short-lived signed tokens carrying
// a single-use nonce; an intercepted payload replayed inside its window is
// rejected.
package qr

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind distinguishes what a QR payload identifies.
type Kind string

const (
	// KindCustomer identifies a customer presenting themselves for
	// enrollment.
	KindCustomer Kind = "customer"
	// KindCard identifies a loyalty card presented at point of sale.
	KindCard Kind = "card"
)

// DefaultMaxAge bounds how long a signed payload stays valid.
const DefaultMaxAge = 5 * time.Minute

// Claims is the signed content of a QR payload.
type Claims struct {
	Kind    Kind   `json:"kind"`
	Subject string `json:"sub_id"`
	jwt.RegisteredClaims
}

// Payload is a validated QR payload.
type Payload struct {
	Kind    Kind
	Subject string
	Nonce   string
}

// Signer mints QR payloads.
type Signer struct {
	signingKey []byte
	audience   string
	maxAge     time.Duration
}

// NewSigner constructs a Signer. maxAge <= 0 falls back to DefaultMaxAge.
func NewSigner(signingKey string, audience string, maxAge time.Duration) *Signer {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Signer{
		signingKey: []byte(signingKey),
		audience:   audience,
		maxAge:     maxAge,
	}
}

// Sign produces a signed payload of the given kind with a fresh nonce.
func (s *Signer) Sign(kind Kind, subject string, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Kind:    kind,
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.maxAge)),
			IssuedAt:  jwt.NewNumericDate(now),
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}
