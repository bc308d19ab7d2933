// Package httptransport is the thin HTTP layer over the compliance core.
// Handlers decode, delegate to domain services and translate errors; no
// business logic lives here.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"custos/pkg/platform/httputil"
	"custos/pkg/platform/middleware/auth"
)

// Handlers groups the per-surface handlers the router mounts.
type Handlers struct {
	Compliance *ComplianceHandler
	Registry   *RegistryHandler
	Trust      *TrustHandler
	Identity   *IdentityHandler
}

// HealthChecker reports backing-store health for /healthz.
type HealthChecker func(r *http.Request) error

// NewRouter wires the public, ledger, manager, agent, admin and identity
// surfaces. Mutating surfaces sit behind JWT auth plus per-surface role
// guards.
func NewRouter(h Handlers, authenticator *auth.Authenticator, health HealthChecker, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(Recovery(logger))
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(chimiddleware.Timeout(30 * time.Second))

	// Public surface.
	r.Get("/healthz", handleHealth(health))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	h.Trust.RegisterPublic(r)

	// Authenticated surfaces.
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(authenticator, logger))
		h.Compliance.Register(r)
		h.Registry.Register(r)
		h.Trust.Register(r)
		h.Identity.Register(r)
	})

	return r
}

func handleHealth(health HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health(r); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "degraded",
					"error":  err.Error(),
				})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
