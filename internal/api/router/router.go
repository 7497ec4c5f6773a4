package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/booking-engine/internal/availability"
	"github.com/wolfman30/booking-engine/internal/bookings"
	"github.com/wolfman30/booking-engine/internal/business"
	httpmiddleware "github.com/wolfman30/booking-engine/internal/http/middleware"
	"github.com/wolfman30/booking-engine/internal/waitlist"
	"github.com/wolfman30/booking-engine/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Availability       *availability.Handler
	Bookings           *bookings.Handler
	Waitlist           *waitlist.Handler
	Business           *business.Handler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	// Limiter throttles /v1 traffic per business; nil disables it.
	Limiter httpmiddleware.Limiter
	// Checks are run by /ready, keyed by dependency name.
	Checks map[string]Check
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Group(func(public chi.Router) {
		public.Get("/health", health)
		public.Get("/ready", ready(cfg.Checks, cfg.Logger))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	r.Route("/v1", func(v1 chi.Router) {
		if cfg.Limiter != nil {
			v1.Use(httpmiddleware.RateLimit(cfg.Limiter, cfg.Logger))
		}
		v1.Use(httpmiddleware.RequireBusinessID)
		if cfg.Availability != nil {
			cfg.Availability.RegisterRoutes(v1)
		}
		if cfg.Bookings != nil {
			cfg.Bookings.RegisterRoutes(v1)
		}
		if cfg.Waitlist != nil {
			cfg.Waitlist.RegisterRoutes(v1)
		}
	})

	if cfg.Business != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Mount("/businesses", cfg.Business.Routes(httpmiddleware.RequireBusinessScope))
		})
	}

	return r
}
