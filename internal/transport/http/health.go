package httptransport

import (
	"context"
	"net/http"
	"time"

	"loyaltycore/pkg/platform/httputil"
)

const healthCheckTimeout = 2 * time.Second

// Check is one named dependency probe.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// HealthHandler reports dependency health for readiness probes.
type HealthHandler struct {
	checks []Check
}

// NewHealthHandler constructs the health handler. An empty check list means
// the process reports healthy as soon as it serves.
func NewHealthHandler(checks ...Check) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// HandleHealth handles GET /healthz. Any failing dependency turns the whole
// response into 503 with per-dependency detail.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := http.StatusOK
	detail := make(map[string]string, len(h.checks))
	for _, check := range h.checks {
		if err := check.Probe(ctx); err != nil {
			status = http.StatusServiceUnavailable
			detail[check.Name] = err.Error()
			continue
		}
		detail[check.Name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	httputil.WriteJSON(w, status, map[string]any{
		"status": overall,
		"checks": detail,
	})
}
