package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-serial/internal/api/router"
	"github.com/wolfman30/clinic-serial/internal/app/bootstrap"
	"github.com/wolfman30/clinic-serial/internal/availability"
	"github.com/wolfman30/clinic-serial/internal/bookings"
	"github.com/wolfman30/clinic-serial/internal/clinic"
	"github.com/wolfman30/clinic-serial/internal/compliance"
	appconfig "github.com/wolfman30/clinic-serial/internal/config"
	httpmiddleware "github.com/wolfman30/clinic-serial/internal/http/middleware"
	"github.com/wolfman30/clinic-serial/internal/observability/metrics"
	"github.com/wolfman30/clinic-serial/internal/reports"
	"github.com/wolfman30/clinic-serial/pkg/logging"
)

func main() {
	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-serial API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"timezone", cfg.ClinicTimezone,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := bootstrap.BuildPool(ctx, cfg.DatabaseURL, logger)
	if pool != nil {
		defer pool.Close()
	}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	var awsCfg *aws.Config
	if bootstrap.NeedsAWS(cfg) {
		loaded, err := bootstrap.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		awsCfg = &loaded
	}

	metricsHandler, bookingMetrics := setupMetrics()

	// Clinic registry and availability
	registry := clinic.NewRegistry(
		bootstrap.BuildClinicStore(redisClient, cfg, logger),
		cfg.RegistryCacheSize, cfg.RegistryCacheTTL, logger,
	)
	evaluator := availability.NewEvaluator(cfg.Location())

	// Audit trail
	var audit *compliance.AuditService
	var auditRecorder compliance.Recorder
	if pool != nil {
		audit = compliance.NewAuditService(stdlib.OpenDBFromPool(pool))
		auditRecorder = audit
	}

	// Booking engine and notifications
	bookingRepo, reportRepo := setupRepositories(pool)
	dispatcher := bootstrap.BuildDispatcher(cfg, registry, bootstrap.BuildSESClient(awsCfg, cfg), bookingMetrics, logger)
	notifications := bootstrap.BuildNotifications(cfg, pool, dispatcher, bookingRepo, logger)
	logger.Info("booking notifications configured", "mode", notifications.Mode, "email_provider", cfg.EmailProvider)

	bookingService := bookings.NewService(bookings.ServiceDeps{
		Repo:              bookingRepo,
		Clinics:           registry,
		Evaluator:         evaluator,
		Notifier:          notifications.Notifier,
		Metrics:           bookingMetrics,
		AllocationRetries: cfg.AllocationRetries,
		Logger:            logger,
	})
	reportService := reports.NewService(reportRepo, bootstrap.BuildAttachmentStore(awsCfg, cfg, logger), bookingMetrics, logger)

	// Setup router
	routerCfg := &router.Config{
		Logger:              logger,
		ClinicHandler:       clinic.NewHandler(registry, auditRecorder, logger),
		AvailabilityHandler: availability.NewHandler(registry, evaluator, logger),
		BookingHandler:      bookings.NewHandler(bookingService, auditRecorder, cfg.SiteName, logger),
		ReportHandler:       reports.NewHandler(reportService, auditRecorder, cfg.MaxUploadBytes, logger),
		AdminAuthSecret:     cfg.AdminJWTSecret,
		MetricsHandler:      metricsHandler,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		HealthChecks:        healthChecks(pool, redisClient),
	}
	if audit != nil {
		routerCfg.AuditHandler = compliance.NewAuditHandler(audit, logger)
	}
	if cfg.RateLimitRPS > 0 {
		limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		routerCfg.RateLimiter = limiter
		go evictIdleClients(ctx, limiter, 10*time.Minute)
	}
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; admin routes are disabled")
	}
	r := router.New(routerCfg)

	if notifications.Deliverer != nil {
		go notifications.Deliverer.Start(ctx)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func setupMetrics() (http.Handler, *metrics.BookingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewBookingMetrics(reg)
}

// setupRepositories returns Postgres repositories, or in-memory ones when no
// database is configured.
func setupRepositories(pool *pgxpool.Pool) (bookings.Repository, reports.Repository) {
	if pool == nil {
		return bookings.NewInMemoryRepository(), reports.NewInMemoryRepository()
	}
	return bookings.NewPostgresRepository(pool), reports.NewPostgresRepository(pool)
}

func healthChecks(pool *pgxpool.Pool, redisClient *redis.Client) map[string]router.HealthCheck {
	checks := map[string]router.HealthCheck{}
	if pool != nil {
		checks["database"] = pool.Ping
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return checks
}

func evictIdleClients(ctx context.Context, limiter *httpmiddleware.RateLimiter, maxIdle time.Duration) {
	ticker := time.NewTicker(maxIdle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Evict(maxIdle)
		}
	}
}
