// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets these values; services read them. Keeping the package free
// of net/http lets services and background workers import only what they need.
//
// Usage in services (read values):
//
//	customerID := requestcontext.CustomerID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	id "loyaltycore/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	customerIDKey  struct{}
	businessIDKey  struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for tests that need raw context.WithValue.
var (
	ContextKeyCustomerID  = customerIDKey{}
	ContextKeyBusinessID  = businessIDKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// CustomerID retrieves the authenticated customer ID from the context.
// Identity is established upstream; this core trusts the value as-is.
func CustomerID(ctx context.Context) id.CustomerID {
	if customerID, ok := ctx.Value(ContextKeyCustomerID).(id.CustomerID); ok {
		return customerID
	}
	return id.CustomerID{}
}

// WithCustomerID injects a customer ID into the context.
func WithCustomerID(ctx context.Context, customerID id.CustomerID) context.Context {
	return context.WithValue(ctx, ContextKeyCustomerID, customerID)
}

// BusinessID retrieves the authenticated business ID from the context.
func BusinessID(ctx context.Context) id.BusinessID {
	if businessID, ok := ctx.Value(ContextKeyBusinessID).(id.BusinessID); ok {
		return businessID
	}
	return id.BusinessID{}
}

// WithBusinessID injects a business ID into the context.
func WithBusinessID(ctx context.Context, businessID id.BusinessID) context.Context {
	return context.WithValue(ctx, ContextKeyBusinessID, businessID)
}

// RequestID retrieves the correlation ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a correlation ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() for non-HTTP contexts (workers, tests without injection).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Used by the request-time
// middleware and by tests that need deterministic TTL arithmetic.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
