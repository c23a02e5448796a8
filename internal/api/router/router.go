package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/clinic-serial/internal/availability"
	"github.com/wolfman30/clinic-serial/internal/bookings"
	"github.com/wolfman30/clinic-serial/internal/clinic"
	"github.com/wolfman30/clinic-serial/internal/compliance"
	httpmiddleware "github.com/wolfman30/clinic-serial/internal/http/middleware"
	"github.com/wolfman30/clinic-serial/internal/reports"
	"github.com/wolfman30/clinic-serial/pkg/logging"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	ClinicHandler       *clinic.Handler
	AvailabilityHandler *availability.Handler
	BookingHandler      *bookings.Handler
	ReportHandler       *reports.Handler
	AuditHandler        *compliance.AuditHandler
	AdminAuthSecret     string
	MetricsHandler      http.Handler
	CORSAllowedOrigins  []string
	RateLimiter         *httpmiddleware.RateLimiter
	HealthChecks        map[string]HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	limited := func(next http.Handler) http.Handler { return next }
	if cfg.RateLimiter != nil {
		limited = httpmiddleware.RateLimit(cfg.RateLimiter)
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.HealthChecks))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.ClinicHandler != nil {
			public.Mount("/clinics", cfg.ClinicHandler.Routes())
		}
		if cfg.AvailabilityHandler != nil {
			public.Mount("/availability", cfg.AvailabilityHandler.Routes())
		}
		// Patient submissions and lookups are rate limited per client address.
		if cfg.BookingHandler != nil {
			public.With(limited).Mount("/appointments", cfg.BookingHandler.Routes())
		}
		if cfg.ReportHandler != nil {
			public.With(limited).Mount("/reports", cfg.ReportHandler.Routes())
		}
	})

	// Admin routes require both the bearer session and the CSRF header.
	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Use(httpmiddleware.RequireCSRF)
			if cfg.ClinicHandler != nil {
				cfg.ClinicHandler.RegisterAdmin(admin)
			}
			if cfg.BookingHandler != nil {
				cfg.BookingHandler.RegisterAdmin(admin)
			}
			if cfg.ReportHandler != nil {
				cfg.ReportHandler.RegisterAdmin(admin)
			}
			if cfg.AuditHandler != nil {
				admin.Get("/audit", cfg.AuditHandler.ListEvents)
			}
		})
	}

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		resp := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				resp["status"] = "degraded"
				resp[name] = err.Error()
				continue
			}
			resp[name] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
