package testutil

import (
	"net/http"

	id "loyaltycore/pkg/domain"
	"loyaltycore/pkg/requestcontext"
)

// WithCustomer adds a customer ID to the request context, simulating what the
// identity middleware does for authenticated requests. Invalid IDs are
// silently ignored.
func WithCustomer(req *http.Request, customerID string) *http.Request {
	if parsed, err := id.ParseCustomerID(customerID); err == nil {
		return req.WithContext(requestcontext.WithCustomerID(req.Context(), parsed))
	}
	return req
}

// WithBusiness adds a business ID to the request context.
// Invalid IDs are silently ignored.
func WithBusiness(req *http.Request, businessID string) *http.Request {
	if parsed, err := id.ParseBusinessID(businessID); err == nil {
		return req.WithContext(requestcontext.WithBusinessID(req.Context(), parsed))
	}
	return req
}
