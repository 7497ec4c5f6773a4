package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("BOOKING_SLOT_GRANULARITY", "")
	t.Setenv("BOOKING_MISSING_DAY_CLOSED", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.SlotGranularity != 30*time.Minute {
		t.Fatalf("expected 30m granularity, got %s", cfg.SlotGranularity)
	}
	if cfg.MaxHorizonDays != 60 {
		t.Fatalf("expected 60 day horizon, got %d", cfg.MaxHorizonDays)
	}
	if cfg.FallbackOpen != "09:00" || cfg.FallbackClose != "18:00" {
		t.Fatalf("unexpected fallback hours %s-%s", cfg.FallbackOpen, cfg.FallbackClose)
	}
	if cfg.MissingDayClosed {
		t.Fatalf("expected missing days to fall back to default hours")
	}
	if cfg.StorageTimeout != 5*time.Second {
		t.Fatalf("expected 5s storage timeout, got %s", cfg.StorageTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("BOOKING_SLOT_GRANULARITY", "15m")
	t.Setenv("BOOKING_MAX_HORIZON_DAYS", "30")
	t.Setenv("BOOKING_MISSING_DAY_CLOSED", "true")
	t.Setenv("BOOKING_TX_RETRIES", "5")
	t.Setenv("RATE_LIMIT_PER_SECOND", "2.5")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.SlotGranularity != 15*time.Minute {
		t.Fatalf("expected granularity override, got %s", cfg.SlotGranularity)
	}
	if cfg.MaxHorizonDays != 30 {
		t.Fatalf("expected horizon override, got %d", cfg.MaxHorizonDays)
	}
	if !cfg.MissingDayClosed {
		t.Fatalf("expected missing day closed override")
	}
	if cfg.BookingTxRetries != 5 {
		t.Fatalf("expected retries override, got %d", cfg.BookingTxRetries)
	}
	if cfg.RateLimitPerSecond != 2.5 {
		t.Fatalf("expected rate override, got %v", cfg.RateLimitPerSecond)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("BOOKING_MAX_HORIZON_DAYS", "sixty")
	t.Setenv("BOOKING_STORAGE_TIMEOUT", "soon")
	cfg := Load()
	if cfg.MaxHorizonDays != 60 {
		t.Fatalf("expected default horizon, got %d", cfg.MaxHorizonDays)
	}
	if cfg.StorageTimeout != 5*time.Second {
		t.Fatalf("expected default timeout, got %s", cfg.StorageTimeout)
	}
}

func TestLoadCORSOrigins(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	cfg := Load()
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadEventsAndTracing(t *testing.T) {
	t.Setenv("EVENTS_KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("EVENTS_KAFKA_TOPIC", "")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.1")
	t.Setenv("OUTBOX_MAX_ATTEMPTS", "")
	cfg := Load()
	if len(cfg.EventsKafkaBrokers) != 2 || cfg.EventsKafkaBrokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.EventsKafkaBrokers)
	}
	if cfg.EventsKafkaTopic != "booking.events" {
		t.Fatalf("expected default topic, got %s", cfg.EventsKafkaTopic)
	}
	if !cfg.OTelEnabled || cfg.OTelSampleRatio != 0.1 {
		t.Fatalf("unexpected tracing config enabled=%v ratio=%v", cfg.OTelEnabled, cfg.OTelSampleRatio)
	}
	if cfg.OutboxMaxAttempts != 10 {
		t.Fatalf("expected 10 outbox attempts, got %d", cfg.OutboxMaxAttempts)
	}
}
