// Package httptransport is the thin HTTP layer over the session, gate, and
// verification services. Handlers delegate to the domain and never embed
// business logic.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires all public endpoints.
func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Correlate)
	r.Use(Device)
	r.Use(RequestLogger(logger))
	r.Use(chimw.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Post("/login", h.handleLogin)
			r.Post("/logout", h.handleLogout)
			r.Get("/", h.handleCurrentSession)
			r.Get("/decision", h.handleDecision)
			r.Patch("/identity", h.handleUpdateIdentity)
		})
		r.Post("/verification/refresh", h.handleVerificationRefresh)
	})

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}
