package middleware

import (
	"log/slog"
	"net/http"

	id "loyaltycore/pkg/domain"
	"loyaltycore/pkg/requestcontext"
)

// Header names populated by the upstream identity collaborator. Requests
// arrive already authenticated; this core trusts the values and never
// re-verifies identity.
const (
	HeaderCustomerID = "X-Customer-ID"
	HeaderBusinessID = "X-Business-ID"
)

// Identity extracts the caller identity headers into the request context.
// Malformed IDs are rejected up front so services only ever see parsed,
// non-nil UUIDs.
func Identity(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if raw := r.Header.Get(HeaderCustomerID); raw != "" {
				customerID, err := id.ParseCustomerID(raw)
				if err != nil {
					logger.WarnContext(ctx, "malformed customer id header",
						"request_id", requestcontext.RequestID(ctx),
						"error", err.Error(),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusBadRequest)
					_, _ = w.Write([]byte(`{"error":"invalid_input","message":"malformed ` + HeaderCustomerID + ` header"}`))
					return
				}
				ctx = requestcontext.WithCustomerID(ctx, customerID)
			}

			if raw := r.Header.Get(HeaderBusinessID); raw != "" {
				businessID, err := id.ParseBusinessID(raw)
				if err != nil {
					logger.WarnContext(ctx, "malformed business id header",
						"request_id", requestcontext.RequestID(ctx),
						"error", err.Error(),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusBadRequest)
					_, _ = w.Write([]byte(`{"error":"invalid_input","message":"malformed ` + HeaderBusinessID + ` header"}`))
					return
				}
				ctx = requestcontext.WithBusinessID(ctx, businessID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
