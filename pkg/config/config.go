package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string

	// Upstream feed/catalog
	FeedWSURL    string
	CatalogURL   string
	CatalogLimit int

	// Catalog admission gates (§4.1)
	MinVolume24h      float64
	MinLiquidity      float64
	MinMarketDuration time.Duration
	MaxMarketDuration time.Duration
	CatalogPollInterval time.Duration

	// Pinned markets (§9)
	PinnedPrefixes       []string
	PinnedPollInterval   time.Duration
	PinnedPreSubscribe   time.Duration
	PinnedGracePeriod    time.Duration

	// Subscription controller
	MaxSubscriptions    int
	ReconcileInterval   time.Duration
	SubscribeChunkSize  int
	RemoveGraceTicks    int

	// Feed connector / websocket
	WSDialTimeout           time.Duration
	WSPongTimeout           time.Duration
	WSPingInterval          time.Duration
	WSReconnectInitialDelay time.Duration
	WSReconnectMaxDelay     time.Duration
	WSReconnectBackoffMult  float64
	WSMessageBufferSize     int

	// Spread detector
	ArbMaxCombined  float64
	MinArbTicks     int

	// Aggregator
	AggregatorInterval time.Duration
	AggregatorWindow   time.Duration

	// Persistence
	StorageMode  string // "postgres" or "console"
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string

	// Persistence writer queue
	WriterQueueSize int
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),

		FeedWSURL:    getEnvOrDefault("FEED_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/market"),
		CatalogURL:   getEnvOrDefault("CATALOG_API_URL", "https://gamma-api.polymarket.com"),
		CatalogLimit: getIntOrDefault("CATALOG_PAGE_LIMIT", 500),

		MinVolume24h:        getFloat64OrDefault("MIN_VOLUME_24H", 1000.0),
		MinLiquidity:        getFloat64OrDefault("MIN_LIQUIDITY", 500.0),
		MinMarketDuration:   getDurationOrDefault("MIN_MARKET_DURATION", 0),
		MaxMarketDuration:   getDurationOrDefault("MAX_MARKET_DURATION", 30*24*time.Hour),
		CatalogPollInterval: getDurationOrDefault("CATALOG_POLL_INTERVAL", 60*time.Second),

		PinnedPrefixes:     getStringSliceOrDefault("PINNED_MARKET_PREFIXES", nil),
		PinnedPollInterval: getDurationOrDefault("PINNED_POLL_INTERVAL", 10*time.Second),
		PinnedPreSubscribe: getDurationOrDefault("PINNED_PRE_SUBSCRIBE", 30*time.Second),
		PinnedGracePeriod:  getDurationOrDefault("PINNED_GRACE_PERIOD", 60*time.Second),

		MaxSubscriptions:   getIntOrDefault("MAX_SUBSCRIPTIONS", 4000),
		ReconcileInterval:  getDurationOrDefault("RECONCILE_INTERVAL", 15*time.Second),
		SubscribeChunkSize: getIntOrDefault("SUBSCRIBE_CHUNK_SIZE", 500),
		RemoveGraceTicks:   getIntOrDefault("REMOVE_GRACE_TICKS", 2),

		WSDialTimeout:           getDurationOrDefault("WS_DIAL_TIMEOUT", 10*time.Second),
		WSPongTimeout:           getDurationOrDefault("WS_PONG_TIMEOUT", 15*time.Second),
		WSPingInterval:          getDurationOrDefault("WS_PING_INTERVAL", 30*time.Second),
		WSReconnectInitialDelay: getDurationOrDefault("WS_RECONNECT_INITIAL_DELAY", 100*time.Millisecond),
		WSReconnectMaxDelay:     getDurationOrDefault("WS_RECONNECT_MAX_DELAY", 30*time.Second),
		WSReconnectBackoffMult:  getFloat64OrDefault("WS_RECONNECT_BACKOFF_MULTIPLIER", 2.0),
		WSMessageBufferSize:     getIntOrDefault("WS_MESSAGE_BUFFER_SIZE", 10000),

		ArbMaxCombined: getFloat64OrDefault("ARB_MAX_COMBINED", 1.0),
		MinArbTicks:    getIntOrDefault("MIN_ARB_TICKS", 2),

		AggregatorInterval: getDurationOrDefault("AGGREGATOR_INTERVAL", 60*time.Second),
		AggregatorWindow:   getDurationOrDefault("AGGREGATOR_WINDOW", 24*time.Hour),

		StorageMode:  getEnvOrDefault("STORAGE_MODE", "console"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "spreadscan"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "spreadscan"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "spreadscan"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),

		WriterQueueSize: getIntOrDefault("WRITER_QUEUE_SIZE", 1000),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return errors.New("HTTP_PORT cannot be empty")
	}

	if c.FeedWSURL == "" {
		return errors.New("FEED_WS_URL cannot be empty")
	}

	if c.CatalogURL == "" {
		return errors.New("CATALOG_API_URL cannot be empty")
	}

	if c.ArbMaxCombined <= 0 || c.ArbMaxCombined > 1.0 {
		return fmt.Errorf("ARB_MAX_COMBINED must be in (0, 1.0], got %f", c.ArbMaxCombined)
	}

	if c.MinArbTicks < 1 {
		return fmt.Errorf("MIN_ARB_TICKS must be at least 1, got %d", c.MinArbTicks)
	}

	if c.MinVolume24h < 0 {
		return fmt.Errorf("MIN_VOLUME_24H must be non-negative, got %f", c.MinVolume24h)
	}

	if c.MinLiquidity < 0 {
		return fmt.Errorf("MIN_LIQUIDITY must be non-negative, got %f", c.MinLiquidity)
	}

	if c.MaxMarketDuration < 0 {
		return fmt.Errorf("MAX_MARKET_DURATION must be non-negative (0 = unlimited), got %s", c.MaxMarketDuration)
	}

	if c.MaxSubscriptions < 1 {
		return fmt.Errorf("MAX_SUBSCRIPTIONS must be at least 1, got %d", c.MaxSubscriptions)
	}

	if c.SubscribeChunkSize < 1 || c.SubscribeChunkSize > 500 {
		return fmt.Errorf("SUBSCRIBE_CHUNK_SIZE must be in [1, 500], got %d", c.SubscribeChunkSize)
	}

	if c.RemoveGraceTicks < 1 {
		return fmt.Errorf("REMOVE_GRACE_TICKS must be at least 1, got %d", c.RemoveGraceTicks)
	}

	if c.WriterQueueSize < 1 {
		return fmt.Errorf("WRITER_QUEUE_SIZE must be at least 1, got %d", c.WriterQueueSize)
	}

	if c.StorageMode != "postgres" && c.StorageMode != "console" {
		return fmt.Errorf("STORAGE_MODE must be 'postgres' or 'console', got %q", c.StorageMode)
	}

	return nil
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}
