package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends
const (
	StoreMongo      = "mongo"
	StorePostgres   = "postgres"
	StoreClickHouse = "clickhouse"
	StoreMemory     = "memory"
)

// Config holds all configuration for the application
type Config struct {
	// Input
	LogPath      string // Telemetry log file to tail (positional argument)
	AllowListDir string // Directory with <subsystem>_config.{json,yaml,yml}
	FromStart    bool   // Read existing content on first open instead of starting at end of file
	OffsetDBPath string // BoltDB cursor store; empty disables cursor persistence

	// Storage
	StoreBackend    string
	MongoURI        string
	MongoDatabase   string
	PostgresDSN     string
	ClickHouseHost  string
	ClickHousePort  int
	ClickHouseDB    string
	ClickHouseUser  string
	ClickHousePass  string
	StoreTimeout    time.Duration // Per-category upsert bound
	ConnectAttempts int
	ConnectDelay    time.Duration
	ConnectMaxDelay time.Duration

	// Notification
	NotifyURL     string // Empty disables notifications
	NotifyTimeout time.Duration

	// Watch loop
	WatchInterval    time.Duration // argus poll interval
	FallbackInterval time.Duration // size-check ticker

	// Observability
	LogLevel        string
	LogFile         string
	TracingEnabled  bool
	TracingEndpoint string
	TracingProtocol string
	TracingSample   float64 // root span sampling ratio in (0, 1]
	MetricsAddr     string
}

// FromEnv reads configuration from environment variables without validating it,
// so that command-line flags can be applied on top
func FromEnv() *Config {
	return &Config{
		LogPath:      getEnv("TELEMETRY_LOG", ""),
		AllowListDir: getEnv("ALLOWLIST_DIR", "configs"),
		FromStart:    getEnvBool("TAIL_FROM_START", false),
		OffsetDBPath: getEnv("OFFSET_DB_PATH", ""),

		StoreBackend:    strings.ToLower(getEnv("STORE_BACKEND", StoreMongo)),
		MongoURI:        getEnv("MONGODB_URI", getEnv("MONGODB_ATLAS_URI", "mongodb://localhost:27017")),
		MongoDatabase:   getEnv("MONGODB_DATABASE", "telemetry_db"),
		PostgresDSN:     getEnv("DATABASE_URL", ""),
		ClickHouseHost:  getEnv("CLICKHOUSE_HOST", "localhost"),
		ClickHousePort:  getEnvInt("CLICKHOUSE_PORT", 9000),
		ClickHouseDB:    getEnv("CLICKHOUSE_DB", "telemetry"),
		ClickHouseUser:  getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePass:  getEnv("CLICKHOUSE_PASSWORD", ""),
		StoreTimeout:    getEnvDuration("STORE_TIMEOUT_MS", 10*time.Second),
		ConnectAttempts: getEnvInt("CONNECT_MAX_ATTEMPTS", 5),
		ConnectDelay:    getEnvDuration("CONNECT_INITIAL_DELAY_MS", 200*time.Millisecond),
		ConnectMaxDelay: getEnvDuration("CONNECT_MAX_DELAY_MS", 5*time.Second),

		NotifyURL:     getEnv("NOTIFY_URL", "http://localhost:4000/api/notify-update"),
		NotifyTimeout: getEnvDuration("NOTIFY_TIMEOUT_MS", 2*time.Second),

		WatchInterval:    getEnvDuration("WATCH_INTERVAL_MS", 250*time.Millisecond),
		FallbackInterval: getEnvDuration("FALLBACK_INTERVAL_MS", time.Second),

		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFile:         getEnv("LOG_FILE", ""),
		TracingEnabled:  getEnvBool("TRACING_ENABLED", false),
		TracingEndpoint: getEnv("TRACING_ENDPOINT", ""),
		TracingProtocol: getEnv("TRACING_PROTOCOL", "grpc"),
		TracingSample:   getEnvFloat("TRACING_SAMPLE_RATIO", 1.0),
		MetricsAddr:     getEnv("METRICS_ADDR", ""),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.LogPath == "" {
		return fmt.Errorf("telemetry log path is required")
	}
	if c.AllowListDir == "" {
		return fmt.Errorf("ALLOWLIST_DIR is required")
	}

	switch c.StoreBackend {
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required for the mongo store")
		}
		if c.MongoDatabase == "" {
			return fmt.Errorf("MONGODB_DATABASE is required for the mongo store")
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreClickHouse:
		if c.ClickHouseHost == "" {
			return fmt.Errorf("CLICKHOUSE_HOST is required for the clickhouse store")
		}
		if c.ClickHousePort <= 0 || c.ClickHousePort > 65535 {
			return fmt.Errorf("CLICKHOUSE_PORT must be between 1 and 65535")
		}
		if c.ClickHouseDB == "" {
			return fmt.Errorf("CLICKHOUSE_DB is required for the clickhouse store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q (use mongo, postgres, clickhouse or memory)", c.StoreBackend)
	}

	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT_MS must be positive")
	}
	if c.NotifyURL != "" && c.NotifyTimeout <= 0 {
		return fmt.Errorf("NOTIFY_TIMEOUT_MS must be positive")
	}
	if c.WatchInterval <= 0 || c.FallbackInterval <= 0 {
		return fmt.Errorf("WATCH_INTERVAL_MS and FALLBACK_INTERVAL_MS must be positive")
	}
	if c.TracingEnabled && c.TracingProtocol != "grpc" && c.TracingProtocol != "http" {
		return fmt.Errorf("TRACING_PROTOCOL must be grpc or http")
	}
	if c.TracingEnabled && (c.TracingSample <= 0 || c.TracingSample > 1) {
		return fmt.Errorf("TRACING_SAMPLE_RATIO must be in (0, 1]")
	}

	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float environment variable or returns a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvDuration reads a millisecond count from an environment variable
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}
