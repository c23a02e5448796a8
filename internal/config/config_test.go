package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("NOTIFY_MODE", "")
	t.Setenv("NOTIFY_TIMEOUT", "")
	t.Setenv("BOOKING_ALLOCATION_RETRIES", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.NotifyMode != "inline" || cfg.UsesOutbox() {
		t.Fatalf("expected inline notify mode by default, got %s", cfg.NotifyMode)
	}
	if cfg.NotifyTimeout != 20*time.Second {
		t.Fatalf("expected 20s notify timeout, got %s", cfg.NotifyTimeout)
	}
	if cfg.AllocationRetries != 5 {
		t.Fatalf("expected 5 allocation retries, got %d", cfg.AllocationRetries)
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Fatalf("expected no CORS origins, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("NOTIFY_MODE", " OUTBOX ")
	t.Setenv("NOTIFY_TIMEOUT", "5s")
	t.Setenv("BOOKING_ALLOCATION_RETRIES", "9")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("RATE_LIMIT_RPS", "0.5")
	t.Setenv("ADMIN_EMAIL", "desk@clinic.example")
	t.Setenv("OUTBOX_INTERVAL", "500ms")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if !cfg.UsesOutbox() {
		t.Fatalf("expected outbox mode, got %q", cfg.NotifyMode)
	}
	if cfg.NotifyTimeout != 5*time.Second {
		t.Fatalf("expected 5s notify timeout, got %s", cfg.NotifyTimeout)
	}
	if cfg.AllocationRetries != 9 {
		t.Fatalf("expected 9 retries, got %d", cfg.AllocationRetries)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected CORS origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.RateLimitRPS != 0.5 {
		t.Fatalf("expected rps 0.5, got %v", cfg.RateLimitRPS)
	}
	if cfg.AdminEmail != "desk@clinic.example" || cfg.OutboxInterval != 500*time.Millisecond {
		t.Fatalf("unexpected notification settings %q %s", cfg.AdminEmail, cfg.OutboxInterval)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("NOTIFY_TIMEOUT", "soon")
	t.Setenv("REDIS_TLS", "maybe")
	t.Setenv("REGISTRY_CACHE_SIZE", "lots")
	cfg := Load()
	if cfg.NotifyTimeout != 20*time.Second {
		t.Fatalf("expected default timeout, got %s", cfg.NotifyTimeout)
	}
	if cfg.RedisTLS {
		t.Fatalf("expected redis TLS disabled")
	}
	if cfg.RegistryCacheSize != 8 {
		t.Fatalf("expected default cache size, got %d", cfg.RegistryCacheSize)
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := &Config{ClinicTimezone: "Mars/Olympus"}
	if cfg.Location() != time.UTC {
		t.Fatalf("expected UTC fallback")
	}
	cfg.ClinicTimezone = "Asia/Dhaka"
	if cfg.Location().String() != "Asia/Dhaka" {
		t.Fatalf("expected Asia/Dhaka, got %s", cfg.Location())
	}
}
