package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/booking-engine/internal/bookings"
	"github.com/wolfman30/booking-engine/internal/business"
	appconfig "github.com/wolfman30/booking-engine/internal/config"
	"github.com/wolfman30/booking-engine/internal/customers"
	"github.com/wolfman30/booking-engine/internal/observability/metrics"
	"github.com/wolfman30/booking-engine/internal/staff"
	"github.com/wolfman30/booking-engine/internal/waitlist"
	"github.com/wolfman30/booking-engine/pkg/logging"
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

// BuildPostgresPool connects and pings the database. It returns nil, nil
// when no URL is configured.
func BuildPostgresPool(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	logger.Info("connected to postgres")
	return pool, nil
}

// BuildBusinessStore returns the config store. With Redis the configs are
// persisted there and cached in process with cross-replica invalidation.
func BuildBusinessStore(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) (business.Writer, *business.CachedStore) {
	if redisClient == nil {
		logger.Warn("redis unavailable, business configs kept in memory")
		return business.NewMemoryStore(), nil
	}
	cached := business.NewCachedStore(business.NewStore(redisClient), cfg.ConfigCacheSize, cfg.ConfigCacheTTL, logger).
		WithInvalidationBus(redisClient)
	return cached, cached
}

// Stores groups the persistence backends behind the scheduling services.
type Stores struct {
	Appointments bookings.Store
	Staff        staff.Directory
	Waitlist     waitlist.Store
	Backend      string
}

// BuildStores selects Postgres when a pool is available and memory stores
// otherwise, or when UseMemoryStores forces them.
func BuildStores(cfg *appconfig.Config, pool *pgxpool.Pool, m *metrics.SchedulingMetrics, logger *logging.Logger) (*Stores, error) {
	if cfg.UseMemoryStores || pool == nil {
		if !cfg.UseMemoryStores {
			return nil, fmt.Errorf("bootstrap: DATABASE_URL required unless USE_MEMORY_STORES is set")
		}
		return &Stores{
			Appointments: bookings.NewMemoryStore(customers.NewMemoryDirectory()),
			Staff:        staff.NewMemoryDirectory(),
			Waitlist:     waitlist.NewMemoryStore(),
			Backend:      "memory",
		}, nil
	}
	return &Stores{
		Appointments: bookings.NewPostgresStore(pool, logger).WithRetries(cfg.BookingTxRetries).WithMetrics(m),
		Staff:        staff.NewPostgresDirectory(pool),
		Waitlist:     waitlist.NewPostgresStore(pool),
		Backend:      "postgres",
	}, nil
}

// BuildResolver applies the configured missing-day policy.
func BuildResolver(cfg *appconfig.Config, m *metrics.SchedulingMetrics, logger *logging.Logger) *business.Resolver {
	var fallback *business.DayHours
	if !cfg.MissingDayClosed {
		fallback = &business.DayHours{Open: cfg.FallbackOpen, Close: cfg.FallbackClose}
	}
	return business.NewResolver(fallback, logger).WithObserver(m)
}
