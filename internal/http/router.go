package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/grocery-cart/internal/domain"
	"github.com/fjod/grocery-cart/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// RouterConfig carries everything NewRouter mounts.
type RouterConfig struct {
	Carts     CartService
	Analytics AnalyticsService
	Logger    zerolog.Logger
	// Metrics is optional; without it /metrics is not mounted.
	Metrics *metrics.HTTP
	// Health reports whether the backing store is reachable.
	Health func(ctx context.Context) error

	JWTSecret      string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	CORSOrigins    []string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	cartHandler := NewCartHandler(cfg.Carts, cfg.Analytics, cfg.MaxBodyBytes)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(cfg.Logger))
	r.Use(RequestIDMiddleware)
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", requestIDHeader},
			ExposedHeaders:   []string{requestIDHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health(r.Context()); err != nil {
				zerolog.Ctx(r.Context()).Error().Err(err).Msg("health check failed")
				respondMessage(w, r, http.StatusServiceUnavailable, "unavailable")
				return
			}
		}
		respondJSON(w, r, http.StatusOK, Response{Success: true, Message: "ok"})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Route("/cart", func(r chi.Router) {
		r.Use(Authenticate([]byte(cfg.JWTSecret)))

		r.Post("/add", cartHandler.AddItem)
		r.Patch("/update-quantity", cartHandler.UpdateQuantity)
		r.Delete("/remove/{productId}", cartHandler.RemoveItem)
		r.Delete("/clear", cartHandler.ClearCart)
		r.Get("/", cartHandler.GetCart)
		r.Get("/summary", cartHandler.GetCartSummary)

		r.Group(func(r chi.Router) {
			r.Use(RequireRoles(domain.RoleAdmin, domain.RoleVendor))
			r.Get("/analytics", cartHandler.GetCartAnalytics)
			r.Get("/abandoned", cartHandler.GetAbandonedCarts)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondMessage(w, r, http.StatusNotFound, "Route not found")
	})

	return r
}
