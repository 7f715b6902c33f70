package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/nv-cho/on-message/internal/api/middleware"
	"github.com/nv-cho/on-message/internal/arkiv"
	"github.com/nv-cho/on-message/internal/chat"
	"github.com/nv-cho/on-message/internal/handlers"
)

// Options carries the router's dependencies. Redis is optional; without
// it the rate limiter is skipped entirely.
type Options struct {
	Logger             zerolog.Logger
	Store              arkiv.Client
	Repo               *chat.Repository
	Redis              *redis.Client
	RateLimitWhitelist []string
}

// NewRouter creates and configures the HTTP router.
func NewRouter(opts Options) *chi.Mux {
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
	r.Use(middleware.Logger(opts.Logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	if opts.Redis != nil {
		limiter := middleware.NewRateLimiter(opts.Redis, opts.Logger, middleware.RateLimiterConfig{
			Whitelist: opts.RateLimitWhitelist,
		})
		r.Use(limiter.Middleware)
	}

	// CORS - the lobby UI may be served from anywhere
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(opts.Repo, opts.Store, opts.Redis, opts.Logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/health", h.Health)
	r.Get("/api", h.Root)
	r.Get("/api/stats", h.Stats)

	r.Route("/api/invites", func(r chi.Router) {
		r.Get("/", h.ListInvites)
		r.Delete("/{entityKey}", h.DeleteInvite)
	})

	r.Route("/api/rooms", func(r chi.Router) {
		r.Post("/open", h.OpenRoom)
		r.Get("/{roomKey}", h.GetRoom)
		r.Get("/{roomKey}/messages", h.GetMessages)
		r.Post("/{roomKey}/messages", h.PostMessage)
	})

	return r
}
