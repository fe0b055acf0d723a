package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parcelbox-dev/parcelbox-core/internal/infrastructure/metrics"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus scrape endpoint
	if s.gatherer != nil {
		r.Handle("/metrics", metrics.Handler(s.gatherer))
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Google sign-in (no auth required; rate limited by client IP)
		r.Group(func(r chi.Router) {
			if s.limiter != nil {
				r.Use(s.limiter.middleware)
			}
			r.Post("/auth/google", s.handleGoogleLogin)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			if s.limiter != nil {
				r.Use(s.limiter.middleware)
			}

			r.Get("/auth/me", s.handleMe)

			// WS ticket requires authentication - user must be logged in to request a ticket
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Parcel endpoints
			r.Route("/parcels", func(r chi.Router) {
				r.Get("/", s.handleListParcels)
				r.Post("/register", s.handleRegisterParcel)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetParcel)
					r.Post("/unlock", s.handleUnlockParcel)
					r.Post("/collect", s.handleCollectParcel)
				})
			})

			// Box endpoints
			r.Route("/boxes", func(r chi.Router) {
				r.Get("/", s.handleListBoxes)
				r.Post("/{id}/lock", s.handleLockBox)
			})

			// Bus capability token for the authenticated user
			r.Post("/bus/token", s.handleUserBusToken)

			// WebSocket (auth via ticket, validated in handler)
			r.Get("/ws", s.handleWebSocket)
		})

		// Hardware provisioning routes (operator key, not user sessions)
		r.Route("/hardware", func(r chi.Router) {
			r.Use(s.provisionKeyMiddleware)

			r.Post("/parcels/delivered", s.handleDeliveredEvent)
			r.Get("/boxes/{id}/expected-parcel", s.handleExpectedParcel)
			r.Post("/bus/token", s.handleProvisionBusToken)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
