package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Backends understood by DATA_BACKEND.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

var validBackends = []string{BackendMemory, BackendSQLite, BackendPostgres}

type Config struct {
	// HTTP Server
	Port            string
	ShutdownTimeout time.Duration
	MetricsEnabled  bool

	// RateLimitPerMinute caps POST /api/events per client; 0 disables it.
	RateLimitPerMinute int

	LogLevel string

	// Storage
	DataBackend  string
	SQLiteDBPath string
	PostgresDSN  string
	// SeedDir holds seed_cards.txt for the memory backend.
	SeedDir string

	// AMQP; consumption is disabled when AMQPURL is empty.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Worker
	WorkerConcurrency int

	// Card cache; a zero TTL disables it.
	CardCacheSize int
	CardCacheTTL  time.Duration
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8081"),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 600),
		LogLevel:           getEnv("LOG_LEVEL", "info"),

		DataBackend:  getEnv("DATA_BACKEND", BackendSQLite),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/aggregates.db"),
		PostgresDSN:  getEnv("POSTGRES_DSN", ""),
		SeedDir:      getEnv("SEED_DIR", "./data"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "spending"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "aggregate_changes"),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),

		CardCacheSize: getEnvInt("CARD_CACHE_SIZE", 256),
		CardCacheTTL:  getEnvDuration("CARD_CACHE_TTL", 0),
	}
}

// Validate returns every configuration problem at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			errors = append(errors, "POSTGRES_DSN is required when using postgres backend")
		} else if u, err := url.Parse(c.PostgresDSN); err != nil {
			errors = append(errors, fmt.Sprintf("invalid POSTGRES_DSN: %v", err))
		} else if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			errors = append(errors, fmt.Sprintf("invalid POSTGRES_DSN scheme '%s': must be 'postgres' or 'postgresql'", u.Scheme))
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.WorkerConcurrency < 1 {
		errors = append(errors, fmt.Sprintf("invalid worker concurrency %d: must be at least 1", c.WorkerConcurrency))
	} else if c.WorkerConcurrency > 256 {
		errors = append(errors, fmt.Sprintf("invalid worker concurrency %d: must be at most 256", c.WorkerConcurrency))
	}

	if c.RateLimitPerMinute < 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must not be negative", c.RateLimitPerMinute))
	}

	if c.CardCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid card cache TTL %v: must not be negative", c.CardCacheTTL))
	}
	if c.CardCacheTTL > 0 && c.CardCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid card cache size %d: must be at least 1 when the cache is enabled", c.CardCacheSize))
	}

	if c.ShutdownTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid shutdown timeout %v: must be at least 1 second", c.ShutdownTimeout))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ConsumerEnabled reports whether an AMQP broker is configured.
func (c *Config) ConsumerEnabled() bool {
	return c.AMQPURL != ""
}

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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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
