package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-serial/internal/clinic"
	appconfig "github.com/wolfman30/clinic-serial/internal/config"
	"github.com/wolfman30/clinic-serial/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildClinicStore returns the Redis settings store, or an in-memory one when
// Redis is unavailable. Memory settings do not survive a restart.
func BuildClinicStore(redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) clinic.SettingsStore {
	if redisClient == nil {
		if logger != nil {
			logger.Warn("clinic settings kept in memory; configure REDIS_ADDR to persist them")
		}
		return clinic.NewMemoryStore()
	}
	key := ""
	if cfg != nil {
		key = cfg.SettingsKey
	}
	return clinic.NewStore(redisClient, key)
}

// BuildPool connects to Postgres. It returns nil when no URL is configured or
// the database cannot be reached, in which case callers use memory storage.
func BuildPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if strings.TrimSpace(databaseURL) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		return nil
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres ping failed", "error", err)
		pool.Close()
		return nil
	}
	return pool
}
