package business

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/booking-engine/pkg/logging"
)

// InvalidationChannel carries business ids whose cached config is stale.
const InvalidationChannel = "business:config:invalidate"

// CachedStore fronts a Writer with a bounded, expiring in-process cache.
// Writes through the cache invalidate the local entry and, when an
// invalidation bus is attached, every other process watching it.
type CachedStore struct {
	backend Writer
	cache   *expirable.LRU[string, *Config]
	bus     *redis.Client
	logger  *logging.Logger
}

// NewCachedStore wraps backend with an LRU of the given size and TTL.
func NewCachedStore(backend Writer, size int, ttl time.Duration, logger *logging.Logger) *CachedStore {
	if backend == nil {
		panic("business: backend store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if size <= 0 {
		size = 512
	}
	return &CachedStore{
		backend: backend,
		cache:   expirable.NewLRU[string, *Config](size, nil, ttl),
		logger:  logger,
	}
}

// WithInvalidationBus publishes and receives invalidations over Redis pub/sub.
func (c *CachedStore) WithInvalidationBus(client *redis.Client) *CachedStore {
	c.bus = client
	return c
}

// Get returns a copy of the cached config, loading it on a miss.
func (c *CachedStore) Get(ctx context.Context, businessID string) (*Config, error) {
	if cfg, ok := c.cache.Get(businessID); ok {
		return cfg.Clone(), nil
	}
	cfg, err := c.backend.Get(ctx, businessID)
	if err != nil {
		return nil, err
	}
	c.cache.Add(businessID, cfg.Clone())
	return cfg, nil
}

// Set writes through to the backend and invalidates the cached entry.
func (c *CachedStore) Set(ctx context.Context, cfg *Config) error {
	if err := c.backend.Set(ctx, cfg); err != nil {
		return err
	}
	c.Invalidate(cfg.BusinessID)
	if c.bus != nil {
		if err := c.bus.Publish(ctx, InvalidationChannel, cfg.BusinessID).Err(); err != nil {
			c.logger.Warn("business config invalidation publish failed", "business_id", cfg.BusinessID, "error", err)
		}
	}
	return nil
}

// Invalidate drops one business from the cache.
func (c *CachedStore) Invalidate(businessID string) {
	c.cache.Remove(businessID)
}

// Len reports the number of cached configs.
func (c *CachedStore) Len() int {
	return c.cache.Len()
}

// Watch applies invalidations published by other processes until ctx ends.
func (c *CachedStore) Watch(ctx context.Context) {
	if c.bus == nil {
		return
	}
	sub := c.bus.Subscribe(ctx, InvalidationChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		c.logger.Warn("business config invalidation subscribe failed", "error", err)
		return
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			c.Invalidate(msg.Payload)
			c.logger.Debug("business config invalidated", "business_id", msg.Payload)
		}
	}
}
