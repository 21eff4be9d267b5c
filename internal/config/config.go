package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	HTTPPort        string
	GRPCPort        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	MaxRequestBody  int64
	LogLevel        string
	OTLPEndpoint    string
	Currency        string

	Storage           string
	DBHost            string
	DBPort            string
	DBUser            string
	DBPassword        string
	DBName            string
	MigrationsDir     string
	CatalogDBPath     string
	CatalogMigrations string

	MongoURI          string
	MongoDB           string
	RedisAddr         string
	RedisPassword     string
	CartCacheTTL      time.Duration
	GuestCartCacheTTL time.Duration

	KafkaBrokers  []string
	NotifyTopic   string
	ConsumerGroup string

	Gateway GatewayConfig
}

type GatewayConfig struct {
	Latency         time.Duration
	MaxAttempts     int
	AttemptTimeout  time.Duration
	BaseBackoff     time.Duration
	MaxBackoff      time.Duration
	BreakerFailures uint32
	BreakerOpenFor  time.Duration
	BreakerHalfOpen uint32
}

// Load reads the configuration from the environment. Unset variables fall
// back to defaults; set but malformed ones are reported together.
func Load() (*Config, error) {
	p := &parser{}

	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		GRPCPort:        getEnv("GRPC_PORT", "50051"),
		RequestTimeout:  p.duration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxRequestBody:  int64(p.integer("MAX_REQUEST_BODY", 1<<20)),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		OTLPEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		Currency:        getEnv("CURRENCY", "USD"),

		Storage:           strings.ToLower(getEnv("STORAGE", StorageMemory)),
		DBHost:            getEnv("DB_HOST", "localhost"),
		DBPort:            getEnv("DB_PORT", "5432"),
		DBUser:            getEnv("DB_USER", "postgres"),
		DBPassword:        getEnv("DB_PASSWORD", "postgres"),
		DBName:            getEnv("DB_NAME", "storefront"),
		MigrationsDir:     getEnv("MIGRATIONS_DIR", "./internal/postgres/migrations"),
		CatalogDBPath:     getEnv("CATALOG_DB_PATH", ":memory:"),
		CatalogMigrations: getEnv("CATALOG_MIGRATIONS_DIR", "./internal/catalog/migrations"),

		MongoURI:          getEnv("MONGO_URI", ""),
		MongoDB:           getEnv("MONGO_DB", "storefront"),
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		CartCacheTTL:      p.duration("CART_CACHE_TTL", 15*time.Minute),
		GuestCartCacheTTL: p.duration("GUEST_CART_CACHE_TTL", 5*time.Minute),

		KafkaBrokers:  splitList(getEnv("KAFKA_BROKERS", "")),
		NotifyTopic:   getEnv("NOTIFY_TOPIC", "storefront-notifications"),
		ConsumerGroup: getEnv("NOTIFY_CONSUMER_GROUP", ""),

		Gateway: GatewayConfig{
			Latency:         p.duration("GATEWAY_LATENCY", 50*time.Millisecond),
			MaxAttempts:     p.integer("GATEWAY_MAX_ATTEMPTS", 3),
			AttemptTimeout:  p.duration("GATEWAY_ATTEMPT_TIMEOUT", 2*time.Second),
			BaseBackoff:     p.duration("GATEWAY_BASE_BACKOFF", 100*time.Millisecond),
			MaxBackoff:      p.duration("GATEWAY_MAX_BACKOFF", 2*time.Second),
			BreakerFailures: uint32(p.integer("GATEWAY_BREAKER_FAILURES", 5)),
			BreakerOpenFor:  p.duration("GATEWAY_BREAKER_OPEN_TIMEOUT", 30*time.Second),
			BreakerHalfOpen: uint32(p.integer("GATEWAY_BREAKER_HALF_OPEN", 1)),
		},
	}

	if cfg.Storage != StorageMemory && cfg.Storage != StoragePostgres {
		p.errs = append(p.errs, fmt.Errorf("STORAGE: unknown backend %q", cfg.Storage))
	}
	if cfg.Gateway.MaxAttempts < 1 {
		p.errs = append(p.errs, errors.New("GATEWAY_MAX_ATTEMPTS: must be at least 1"))
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

type parser struct {
	errs []error
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	if d < 0 {
		p.errs = append(p.errs, fmt.Errorf("%s: must not be negative", key))
		return def
	}
	return d
}

func (p *parser) integer(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	if n < 0 {
		p.errs = append(p.errs, fmt.Errorf("%s: must not be negative", key))
		return def
	}
	return n
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
