package business

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/booking-engine/internal/scheduling"
)

// ErrInvalidConfig is returned when a config cannot be saved.
var ErrInvalidConfig = errors.New("business: invalid config")

// Writer is the read-write config store contract.
type Writer interface {
	Source
	Set(ctx context.Context, cfg *Config) error
}

// Validate checks services and hours before a config is persisted.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BusinessID) == "" {
		return fmt.Errorf("%w: business_id required", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(c.Services))
	for _, svc := range c.Services {
		if strings.TrimSpace(svc.ID) == "" {
			return fmt.Errorf("%w: service id required", ErrInvalidConfig)
		}
		if seen[svc.ID] {
			return fmt.Errorf("%w: duplicate service %q", ErrInvalidConfig, svc.ID)
		}
		seen[svc.ID] = true
		if svc.DurationMinutes <= 0 {
			return fmt.Errorf("%w: service %q needs a positive duration", ErrInvalidConfig, svc.ID)
		}
	}
	days := []*DayHours{
		c.BusinessHours.Monday, c.BusinessHours.Tuesday, c.BusinessHours.Wednesday,
		c.BusinessHours.Thursday, c.BusinessHours.Friday, c.BusinessHours.Saturday, c.BusinessHours.Sunday,
	}
	for _, day := range days {
		if day == nil || day.Closed {
			continue
		}
		if _, ok := parseWindow(*day); !ok {
			return fmt.Errorf("%w: hours %s-%s", ErrInvalidConfig, day.Open, day.Close)
		}
	}
	return nil
}

// Clone returns a deep copy so cached values are never shared with callers.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.Services = append([]Service(nil), c.Services...)
	days := []**DayHours{
		&out.BusinessHours.Monday, &out.BusinessHours.Tuesday, &out.BusinessHours.Wednesday,
		&out.BusinessHours.Thursday, &out.BusinessHours.Friday, &out.BusinessHours.Saturday, &out.BusinessHours.Sunday,
	}
	for _, day := range days {
		if *day != nil {
			copied := **day
			*day = &copied
		}
	}
	return &out
}

// Store persists business config as JSON in Redis.
type Store struct {
	redis *redis.Client
}

// NewStore creates a new business config store.
func NewStore(redisClient *redis.Client) *Store {
	if redisClient == nil {
		panic("business: redis client required")
	}
	return &Store{redis: redisClient}
}

func (s *Store) key(businessID string) string {
	return fmt.Sprintf("business:config:%s", businessID)
}

// Get retrieves business config, returning default if not found.
func (s *Store) Get(ctx context.Context, businessID string) (*Config, error) {
	data, err := s.redis.Get(ctx, s.key(businessID)).Bytes()
	if err == redis.Nil {
		return DefaultConfig(businessID), nil
	}
	if err != nil {
		return nil, scheduling.Storage("business config get", fmt.Errorf("business: get config: %w", err))
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("business: unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Set saves business config.
func (s *Store) Set(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("business: marshal config: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(cfg.BusinessID), data, 0).Err(); err != nil {
		return scheduling.Storage("business config set", fmt.Errorf("business: set config: %w", err))
	}
	return nil
}

// MemoryStore keeps configs in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	configs map[string]*Config
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{configs: make(map[string]*Config)}
}

func (m *MemoryStore) Get(ctx context.Context, businessID string) (*Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if cfg, ok := m.configs[businessID]; ok {
		return cfg.Clone(), nil
	}
	return DefaultConfig(businessID), nil
}

func (m *MemoryStore) Set(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[cfg.BusinessID] = cfg.Clone()
	return nil
}
