package qr

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"loyaltycore/internal/idempotency"
	dErrors "loyaltycore/pkg/domain-errors"
)

var (
	validationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_qr_validations_total",
		Help: "QR payload validation outcomes",
	}, []string{"outcome"})
)

const (
	outcomeValid    = "valid"
	outcomeExpired  = "expired"
	outcomeInvalid  = "invalid"
	outcomeReplayed = "replayed"
)

// Validator verifies QR payloads and enforces nonce single-use.
type Validator struct {
	signingKey []byte
	audience   string
	maxAge     time.Duration
	nonces     idempotency.Guard
}

// NewValidator constructs a Validator. The guard's reservation window
// matches maxAge: once a payload can no longer pass the age check, its
// nonce no longer needs to be remembered.
func NewValidator(signingKey string, audience string, maxAge time.Duration, nonces idempotency.Guard) *Validator {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Validator{
		signingKey: []byte(signingKey),
		audience:   audience,
		maxAge:     maxAge,
		nonces:     nonces,
	}
}

// Validate checks the payload's signature, audience, age and nonce, and
// consumes the nonce. All rejections carry CodeSecurity; callers surface
// them without distinguishing why the payload failed.
func (v *Validator) Validate(ctx context.Context, tokenString string, expected Kind, now time.Time) (*Payload, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	}, jwt.WithAudience(v.audience), jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			validationsTotal.WithLabelValues(outcomeExpired).Inc()
			return nil, dErrors.New(dErrors.CodeSecurity, "qr payload expired")
		}
		validationsTotal.WithLabelValues(outcomeInvalid).Inc()
		return nil, dErrors.New(dErrors.CodeSecurity, "invalid qr payload")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		validationsTotal.WithLabelValues(outcomeInvalid).Inc()
		return nil, dErrors.New(dErrors.CodeSecurity, "invalid qr payload")
	}
	if claims.Kind != expected {
		validationsTotal.WithLabelValues(outcomeInvalid).Inc()
		return nil, dErrors.New(dErrors.CodeSecurity, "invalid qr payload")
	}
	if claims.IssuedAt == nil || now.Sub(claims.IssuedAt.Time) > v.maxAge {
		validationsTotal.WithLabelValues(outcomeExpired).Inc()
		return nil, dErrors.New(dErrors.CodeSecurity, "qr payload expired")
	}
	if claims.ID == "" || claims.Subject == "" {
		validationsTotal.WithLabelValues(outcomeInvalid).Inc()
		return nil, dErrors.New(dErrors.CodeSecurity, "invalid qr payload")
	}

	fresh, err := v.nonces.Reserve(ctx, "qr:nonce:"+claims.ID, v.maxAge)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "reserve qr nonce")
	}
	if !fresh {
		validationsTotal.WithLabelValues(outcomeReplayed).Inc()
		return nil, dErrors.New(dErrors.CodeSecurity, "qr payload already used")
	}

	validationsTotal.WithLabelValues(outcomeValid).Inc()
	return &Payload{Kind: claims.Kind, Subject: claims.Subject, Nonce: claims.ID}, nil
}
