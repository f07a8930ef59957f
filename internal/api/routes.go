package api

import (
	"net/http"
	"time"

	"trade-engine/config"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates and configures a Chi router with all routes
func NewRouter(h *Handler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(MetricsMiddleware)
	r.Use(corsMiddleware(cfg.HTTP.CORSAllowedOrigins))

	// Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Health check
		r.Get("/health", h.handleHealth)

		// Account and positions
		r.Get("/account", h.handleGetAccount)
		r.Get("/positions", h.handleGetPositions)

		// Orders
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.handleGetOrders)
			r.Post("/", h.handlePlaceOrder)
			r.Delete("/{id}", h.handleCancelOrder)
		})

		// Trades
		r.Get("/trades", h.handleGetTrades)

		// Risk surface
		r.Get("/risk", h.handleGetRiskMetrics)
		r.Get("/breakers", h.handleGetBreakers)

		// Trading control
		r.Post("/pause", h.handlePause)
		r.Post("/resume", h.handleResume)
	})

	return r
}
