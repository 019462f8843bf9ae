// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Scoring settings
	DefaultNetwork string
	WeightsFile    string // optional YAML weight table; built-in defaults if empty
	NeighborLimit  int
	BatchSize      int // max addresses per batch request
	Concurrency    int // max concurrent provider fetches in a batch

	// Address lists (file paths or http(s) URLs; empty list = empty set)
	SanctionedList     string
	MixerList          string
	ScamClusterList    string
	ListReloadInterval time.Duration

	// Provider
	ProviderTimeout time.Duration

	// Caches
	HistoryCacheTTL time.Duration
	GraphCacheTTL   time.Duration
	ScoreCacheTTL   time.Duration
	CacheMaxEntries int

	// Security / observability
	RateLimitRPM int
	OTLPEndpoint string
}

// Defaults
const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultNetwork         = "ethereum"
	DefaultNeighborLimit   = 120
	DefaultBatchSize       = 100
	DefaultConcurrency     = 6
	DefaultRateLimit       = 120
	DefaultCacheMaxEntries = 4096
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", DefaultPort),
		Env:                getEnv("ENV", DefaultEnv),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		DefaultNetwork:     getEnv("DEFAULT_NETWORK", DefaultNetwork),
		WeightsFile:        os.Getenv("WEIGHTS_FILE"),
		NeighborLimit:      getEnvInt("NEIGHBOR_LIMIT", DefaultNeighborLimit),
		BatchSize:          getEnvInt("BATCH_SIZE", DefaultBatchSize),
		Concurrency:        getEnvInt("BATCH_CONCURRENCY", DefaultConcurrency),
		SanctionedList:     os.Getenv("SANCTIONED_LIST"),
		MixerList:          os.Getenv("MIXER_LIST"),
		ScamClusterList:    os.Getenv("SCAM_CLUSTER_LIST"),
		ListReloadInterval: getEnvDuration("LIST_RELOAD_INTERVAL", 15*time.Minute),
		ProviderTimeout:    getEnvDuration("PROVIDER_TIMEOUT", 10*time.Second),
		HistoryCacheTTL:    getEnvDuration("HISTORY_CACHE_TTL", 5*time.Minute),
		GraphCacheTTL:      getEnvDuration("GRAPH_CACHE_TTL", 10*time.Minute),
		ScoreCacheTTL:      getEnvDuration("SCORE_CACHE_TTL", 10*time.Minute),
		CacheMaxEntries:    getEnvInt("CACHE_MAX_ENTRIES", DefaultCacheMaxEntries),
		RateLimitRPM:       getEnvInt("RATE_LIMIT_RPM", DefaultRateLimit),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configuration values are usable
func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("BATCH_CONCURRENCY must be >= 1, got %d", c.Concurrency)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("BATCH_SIZE must be >= 1, got %d", c.BatchSize)
	}
	if c.NeighborLimit < 1 {
		return fmt.Errorf("NEIGHBOR_LIMIT must be >= 1, got %d", c.NeighborLimit)
	}
	if c.CacheMaxEntries < 1 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be >= 1, got %d", c.CacheMaxEntries)
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive, got %s", c.ProviderTimeout)
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
