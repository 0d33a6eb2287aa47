package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/parley/internal/api/middleware"
	"github.com/eldtechnologies/parley/internal/handlers"
	"github.com/eldtechnologies/parley/internal/store"
	"github.com/eldtechnologies/parley/internal/token"
)

// NewRouter creates and configures the HTTP router. redisStore may be nil,
// in which case rate limiting is disabled.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, issuer *token.Issuer, redisStore *store.RedisStore) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024)) // 8KB max body
	r.Use(middleware.RequireJSON)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting (requires Redis)
	if redisStore != nil {
		limiter := middleware.NewRateLimiter(redisStore.Client(), logger)
		r.Use(limiter.Middleware)
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	auth := middleware.NewAuthMiddleware(issuer)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/health", h.Health)
	r.Post("/api/register", h.Register)
	r.Post("/api/login", h.LoginAPI)
	r.Post("/login", h.LoginSession)
	r.Get("/logout", h.Logout)

	// Channel admission carries its own token; the gate runs before any
	// registry state is touched.
	r.Get("/ws", h.ServeWS)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Require)

		r.Get("/api/history/{peer}", h.History)
		r.Get("/api/chats", h.ListChats)
		r.Post("/api/chats", h.UpsertChat)
		r.Put("/api/profile", h.UpdateProfile)
	})

	return r
}
