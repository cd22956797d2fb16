package config

import (
	"strings"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"STORE_BACKEND", "MONGODB_URI", "MONGODB_ATLAS_URI", "STORE_TIMEOUT_MS", "NOTIFY_URL", "NOTIFY_TIMEOUT_MS", "ALLOWLIST_DIR"} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()
	if cfg.StoreBackend != StoreMongo {
		t.Errorf("StoreBackend = %q, want %q", cfg.StoreBackend, StoreMongo)
	}
	if cfg.MongoDatabase != "telemetry_db" {
		t.Errorf("MongoDatabase = %q", cfg.MongoDatabase)
	}
	if cfg.StoreTimeout != 10*time.Second {
		t.Errorf("StoreTimeout = %v", cfg.StoreTimeout)
	}
	if cfg.NotifyURL != "http://localhost:4000/api/notify-update" || cfg.NotifyTimeout != 2*time.Second {
		t.Errorf("notify = %q/%v", cfg.NotifyURL, cfg.NotifyTimeout)
	}
	if cfg.AllowListDir != "configs" {
		t.Errorf("AllowListDir = %q", cfg.AllowListDir)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/telemetry")
	t.Setenv("STORE_TIMEOUT_MS", "1500")
	t.Setenv("TAIL_FROM_START", "true")
	t.Setenv("MONGODB_URI", "")
	t.Setenv("MONGODB_ATLAS_URI", "mongodb+srv://cluster")
	t.Setenv("TRACING_SAMPLE_RATIO", "0.25")

	cfg := FromEnv()
	if cfg.StoreBackend != StorePostgres {
		t.Errorf("StoreBackend = %q", cfg.StoreBackend)
	}
	if cfg.StoreTimeout != 1500*time.Millisecond {
		t.Errorf("StoreTimeout = %v", cfg.StoreTimeout)
	}
	if !cfg.FromStart {
		t.Error("FromStart = false")
	}
	if cfg.MongoURI != "mongodb+srv://cluster" {
		t.Errorf("MongoURI = %q, want fallback to MONGODB_ATLAS_URI", cfg.MongoURI)
	}
	if cfg.TracingSample != 0.25 {
		t.Errorf("TracingSample = %v, want 0.25", cfg.TracingSample)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			LogPath:          "/var/log/tm.log",
			AllowListDir:     "configs",
			StoreBackend:     StoreMemory,
			StoreTimeout:     time.Second,
			NotifyURL:        "http://localhost:4000/api/notify-update",
			NotifyTimeout:    time.Second,
			WatchInterval:    time.Second,
			FallbackInterval: time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing log path", func(c *Config) { c.LogPath = "" }, "log path"},
		{"unknown backend", func(c *Config) { c.StoreBackend = "redis" }, "unsupported STORE_BACKEND"},
		{"postgres without dsn", func(c *Config) { c.StoreBackend = StorePostgres }, "DATABASE_URL"},
		{"clickhouse bad port", func(c *Config) {
			c.StoreBackend = StoreClickHouse
			c.ClickHouseHost = "localhost"
			c.ClickHouseDB = "telemetry"
			c.ClickHousePort = 0
		}, "CLICKHOUSE_PORT"},
		{"zero store timeout", func(c *Config) { c.StoreTimeout = 0 }, "STORE_TIMEOUT_MS"},
		{"notify disabled needs no timeout", func(c *Config) { c.NotifyURL = ""; c.NotifyTimeout = 0 }, ""},
		{"bad tracing protocol", func(c *Config) { c.TracingEnabled = true; c.TracingProtocol = "udp" }, "TRACING_PROTOCOL"},
		{"tracing sample ratio above one", func(c *Config) {
			c.TracingEnabled = true
			c.TracingProtocol = "grpc"
			c.TracingSample = 1.5
		}, "TRACING_SAMPLE_RATIO"},
		{"tracing off ignores ratio", func(c *Config) { c.TracingSample = 0 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
