// Package httptransport assembles the public HTTP surface: feature handlers,
// the event stream, health and metrics.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"loyaltycore/internal/platform/middleware"
)

const requestTimeout = 30 * time.Second

// FeatureHandler is implemented by every feature slice's HTTP handler.
type FeatureHandler interface {
	Register(r chi.Router)
}

// Deps carries everything the router mounts.
type Deps struct {
	Logger   *slog.Logger
	Features []FeatureHandler
	Events   *EventsHandler
	Health   *HealthHandler
}

// NewRouter builds the root router with the shared middleware chain and all
// feature mounts.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Tracing())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Identity(deps.Logger))

	// The event stream holds its connection open, so it mounts outside the
	// timeout and content-type middleware.
	if deps.Events != nil {
		r.Get("/events", deps.Events.HandleStream)
	}
	if deps.Health != nil {
		r.Get("/healthz", deps.Health.HandleHealth)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(api chi.Router) {
		api.Use(middleware.Timeout(requestTimeout))
		api.Use(middleware.ContentTypeJSON)
		for _, feature := range deps.Features {
			feature.Register(api)
		}
	})

	return r
}
