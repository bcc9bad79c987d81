package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/librarium-core/internal/auth"
)

// healthCheckTimeout bounds the database ping behind GET /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	r.Use(s.instrumentMiddleware)
	r.Use(s.bearerMiddleware)

	// Prometheus scrape endpoint (no auth, bind to a private interface in production)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", s.handleLogin)
			r.Post("/token", s.handleLogin) // form-encoded alias for OAuth2 password clients
			r.Post("/register", s.handleRegister)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth)
				r.Get("/me", s.handleAuthMe)
				// WS ticket requires authentication - user must be logged in to request a ticket
				r.Post("/ws-ticket", s.handleWSTicket)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/register", s.handleRegister)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth)
				r.Use(s.requirePermission(auth.PermAccountReadSelf))

				r.Get("/me", s.handleGetMe)
				r.Patch("/me", s.handleUpdateMe)
				r.Delete("/me", s.handleDeleteMe)
				r.Put("/me/password", s.handleChangePassword)

				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermAccountManage))
					r.Get("/", s.handleListUsers)
					r.Get("/{id}", s.handleGetUser)
					r.Patch("/{id}", s.handleUpdateUser)
					r.Delete("/{id}", s.handleDeleteUser)
				})
			})
		})

		r.Route("/books", func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Use(s.requirePermission(auth.PermBookRead))

			r.Get("/", s.handleListBooks)
			r.Get("/isbn/{isbn}", s.handleGetBookByISBN)
			r.Get("/{id}", s.handleGetBook)
			r.Get("/{id}/cover", s.handleGetCover)

			r.Group(func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermBookWrite))
				r.Post("/", s.handleCreateBook)
				r.Put("/{id}", s.handleUpdateBook)
				r.Delete("/{id}", s.handleDeleteBook)
				r.Post("/{id}/cover", s.handleCreateCoverUpload)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.With(s.requirePermission(auth.PermAuditRead)).Get("/audit", s.handleListAuditLogs)
			r.With(s.requireRole(auth.RoleStaff)).Get("/system/stats", s.handleSystemStats)
		})

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status. The database is pinged
// when one is attached; a failed ping reports 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{
		"status":  "ok",
		"version": s.version,
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.db.HealthCheck(ctx); err != nil {
			s.logger.Warn("health check: database unreachable", "error", err)
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["database"] = "unreachable"
		} else {
			body["database"] = "ok"
		}
	}

	writeJSON(w, status, body)
}
