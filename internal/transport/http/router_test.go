package httptransport_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"loyaltycore/internal/platform/logger"
	httptransport "loyaltycore/internal/transport/http"
	"loyaltycore/pkg/testutil"
)

func TestRouterSurface(t *testing.T) {
	testutil.Given(t, "a router with healthy probes", func(t *testing.T) {
		router := httptransport.NewRouter(httptransport.Deps{
			Logger: logger.New(),
			Health: httptransport.NewHealthHandler(
				httptransport.Check{Name: "store", Probe: func(ctx context.Context) error { return nil }},
			),
		})

		testutil.When(t, "calling GET /healthz", func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			testutil.Then(t, "the service reports ok", func(t *testing.T) {
				require.Equal(t, http.StatusOK, rec.Code)
				require.Contains(t, rec.Body.String(), `"ok"`)
			})
		})

		testutil.When(t, "calling GET /metrics", func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

			testutil.Then(t, "the registry is exposed", func(t *testing.T) {
				require.Equal(t, http.StatusOK, rec.Code)
			})
		})

		testutil.When(t, "calling an unknown route", func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

			testutil.Then(t, "the router responds not found", func(t *testing.T) {
				require.Equal(t, http.StatusNotFound, rec.Code)
			})
		})
	})

	testutil.Given(t, "a router with a failing probe", func(t *testing.T) {
		router := httptransport.NewRouter(httptransport.Deps{
			Logger: logger.New(),
			Health: httptransport.NewHealthHandler(
				httptransport.Check{Name: "store", Probe: func(ctx context.Context) error { return nil }},
				httptransport.Check{Name: "cache", Probe: func(ctx context.Context) error {
					return errors.New("connection refused")
				}},
			),
		})

		testutil.When(t, "calling GET /healthz", func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			testutil.Then(t, "the service reports degraded", func(t *testing.T) {
				require.Equal(t, http.StatusServiceUnavailable, rec.Code)
				require.Contains(t, rec.Body.String(), `"degraded"`)
				require.Contains(t, rec.Body.String(), "cache")
			})
		})
	})
}
