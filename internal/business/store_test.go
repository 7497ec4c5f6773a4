package business

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/booking-engine/pkg/logging"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, func() {
		client.Close()
		mr.Close()
	}
}

func sampleConfig(id string) *Config {
	cfg := weekdayConfig()
	cfg.BusinessID = id
	cfg.Name = "Glow Studio"
	cfg.Timezone = "America/Chicago"
	cfg.Services = []Service{{ID: "svc-1", Name: "Facial", DurationMinutes: 60, PriceCents: 12000}}
	return cfg
}

func TestStoreGetReturnsDefaultOnMiss(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	cfg, err := NewStore(client).Get(context.Background(), "biz-new")
	require.NoError(t, err)
	assert.Equal(t, "biz-new", cfg.BusinessID)
	assert.Empty(t, cfg.Services)
}

func TestStoreRoundTrip(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()
	store := NewStore(client)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, sampleConfig("biz-1")))
	got, err := store.Get(ctx, "biz-1")
	require.NoError(t, err)
	assert.Equal(t, "Glow Studio", got.Name)
	require.NotNil(t, got.BusinessHours.Saturday)
	assert.True(t, got.BusinessHours.Saturday.Closed)
	assert.Nil(t, got.BusinessHours.Sunday)
}

func TestStoreRejectsInvalidConfig(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()
	store := NewStore(client)

	cfg := sampleConfig("biz-1")
	cfg.Services = append(cfg.Services, Service{ID: "svc-2", Name: "Zero", DurationMinutes: 0})
	assert.ErrorIs(t, store.Set(context.Background(), cfg), ErrInvalidConfig)

	cfg = sampleConfig("biz-1")
	cfg.BusinessHours.Monday = &DayHours{Open: "nine", Close: "17:00"}
	assert.ErrorIs(t, store.Set(context.Background(), cfg), ErrInvalidConfig)
}

type countingWriter struct {
	*MemoryStore
	gets int
}

func (c *countingWriter) Get(ctx context.Context, businessID string) (*Config, error) {
	c.gets++
	return c.MemoryStore.Get(ctx, businessID)
}

func TestCachedStoreServesHitsAndInvalidatesOnWrite(t *testing.T) {
	backend := &countingWriter{MemoryStore: NewMemoryStore()}
	require.NoError(t, backend.Set(context.Background(), sampleConfig("biz-1")))
	cache := NewCachedStore(backend, 8, time.Minute, logging.Default())
	ctx := context.Background()

	first, err := cache.Get(ctx, "biz-1")
	require.NoError(t, err)
	_, err = cache.Get(ctx, "biz-1")
	require.NoError(t, err)
	assert.Equal(t, 1, backend.gets)

	first.Name = "mutated by caller"
	again, err := cache.Get(ctx, "biz-1")
	require.NoError(t, err)
	assert.Equal(t, "Glow Studio", again.Name)

	updated := sampleConfig("biz-1")
	updated.Name = "Glow Studio West"
	require.NoError(t, cache.Set(ctx, updated))
	got, err := cache.Get(ctx, "biz-1")
	require.NoError(t, err)
	assert.Equal(t, "Glow Studio West", got.Name)
	assert.Equal(t, 2, backend.gets)
}

func TestCachedStoreCrossProcessInvalidation(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shared := NewStore(client)
	writer := NewCachedStore(shared, 8, time.Minute, logging.Default()).WithInvalidationBus(client)
	reader := NewCachedStore(shared, 8, time.Minute, logging.Default()).WithInvalidationBus(client)
	go reader.Watch(ctx)

	require.NoError(t, shared.Set(ctx, sampleConfig("biz-1")))
	_, err := reader.Get(ctx, "biz-1")
	require.NoError(t, err)
	require.Equal(t, 1, reader.Len())

	updated := sampleConfig("biz-1")
	updated.Name = "Renamed"
	require.Eventually(t, func() bool {
		if err := writer.Set(ctx, updated); err != nil {
			return false
		}
		return reader.Len() == 0
	}, 2*time.Second, 20*time.Millisecond)

	got, err := reader.Get(ctx, "biz-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
}
