package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string

	// UseMemoryStores keeps appointments, staff, customers and the waitlist in
	// process memory. Intended for local development and demos.
	UseMemoryStores bool

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AdminJWTSecret     string
	RateLimitPerSecond float64
	RateLimitBurst     int
	// RateLimitShared counts requests in Redis so every replica enforces
	// one budget per business.
	RateLimitShared    bool
	CORSAllowedOrigins []string

	// Scheduling
	SlotGranularity       time.Duration
	MaxHorizonDays        int
	DefaultRangeDays      int
	FallbackOpen          string
	FallbackClose         string
	MissingDayClosed      bool
	StorageTimeout        time.Duration
	BookingTxRetries      int
	ConfigCacheSize       int
	ConfigCacheTTL        time.Duration
	WaitlistFallbackLimit int

	// Outbox delivery
	OutboxInterval    time.Duration
	OutboxBatchSize   int
	// OutboxMaxAttempts parks an event after this many failed deliveries.
	OutboxMaxAttempts int
	EventsQueueURL    string
	// EventsKafkaBrokers is used when no SQS queue is configured.
	EventsKafkaBrokers []string
	EventsKafkaTopic   string

	// Tracing
	OTelEnabled     bool
	OTelEndpoint    string
	OTelSampleRatio float64

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		UseMemoryStores: getEnvAsBool("USE_MEMORY_STORES", false),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		RateLimitPerSecond: getEnvAsFloat("RATE_LIMIT_PER_SECOND", 10),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),
		RateLimitShared:    getEnvAsBool("RATE_LIMIT_SHARED", false),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),

		SlotGranularity:       getEnvAsDuration("BOOKING_SLOT_GRANULARITY", 30*time.Minute),
		MaxHorizonDays:        getEnvAsInt("BOOKING_MAX_HORIZON_DAYS", 60),
		DefaultRangeDays:      getEnvAsInt("BOOKING_DEFAULT_RANGE_DAYS", 7),
		FallbackOpen:          getEnv("BOOKING_FALLBACK_OPEN", "09:00"),
		FallbackClose:         getEnv("BOOKING_FALLBACK_CLOSE", "18:00"),
		MissingDayClosed:      getEnvAsBool("BOOKING_MISSING_DAY_CLOSED", false),
		StorageTimeout:        getEnvAsDuration("BOOKING_STORAGE_TIMEOUT", 5*time.Second),
		BookingTxRetries:      getEnvAsInt("BOOKING_TX_RETRIES", 3),
		ConfigCacheSize:       getEnvAsInt("BUSINESS_CONFIG_CACHE_SIZE", 512),
		ConfigCacheTTL:        getEnvAsDuration("BUSINESS_CONFIG_CACHE_TTL", 5*time.Minute),
		WaitlistFallbackLimit: getEnvAsInt("WAITLIST_FALLBACK_LIMIT", 3),

		OutboxInterval:    getEnvAsDuration("OUTBOX_INTERVAL", 2*time.Second),
		OutboxBatchSize:   getEnvAsInt("OUTBOX_BATCH_SIZE", 25),
		OutboxMaxAttempts: getEnvAsInt("OUTBOX_MAX_ATTEMPTS", 10),
		EventsQueueURL:    getEnv("EVENTS_QUEUE_URL", ""),

		EventsKafkaBrokers: getEnvAsList("EVENTS_KAFKA_BROKERS"),
		EventsKafkaTopic:   getEnv("EVENTS_KAFKA_TOPIC", "booking.events"),

		OTelEnabled:     getEnvAsBool("OTEL_ENABLED", false),
		OTelEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelSampleRatio: getEnvAsFloat("OTEL_SAMPLING_RATIO", 1),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
