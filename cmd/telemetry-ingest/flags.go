package main

import (
	"fmt"
	"io"

	"github.com/SteelMorgan/telemetry-ingest/internal/config"
	"github.com/spf13/pflag"
)

const usage = `Usage: telemetry-ingest [flags] <telemetry-log>

Tails a satellite telemetry log and upserts the readings into per-subsystem
collections. Flags override the matching environment variables.

Flags:
`

// applyFlags parses args and overrides cfg with every flag the user set
func applyFlags(cfg *config.Config, args []string, stderr io.Writer) error {
	flagSet := pflag.NewFlagSet("telemetry-ingest", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.Usage = func() {
		fmt.Fprint(stderr, usage)
		flagSet.PrintDefaults()
	}

	allowListDir := flagSet.String("allowlist-dir", cfg.AllowListDir, "directory with <subsystem>_config.json allow-lists")
	store := flagSet.String("store", cfg.StoreBackend, "store backend: mongo, postgres, clickhouse or memory")
	notifyURL := flagSet.String("notify-url", cfg.NotifyURL, "dashboard update endpoint; empty disables notifications")
	logLevel := flagSet.String("log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	fromStart := flagSet.Bool("from-start", cfg.FromStart, "read existing log content on first start instead of only new lines")
	offsetDB := flagSet.String("offset-db", cfg.OffsetDBPath, "BoltDB file keeping the read position across restarts")
	metricsAddr := flagSet.String("metrics-addr", cfg.MetricsAddr, "listen address for /metrics; empty disables it")

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if flagSet.NArg() > 1 {
		return fmt.Errorf("expected one telemetry log path, got %d arguments", flagSet.NArg())
	}
	if flagSet.NArg() == 1 {
		cfg.LogPath = flagSet.Arg(0)
	}

	if flagSet.Changed("allowlist-dir") {
		cfg.AllowListDir = *allowListDir
	}
	if flagSet.Changed("store") {
		cfg.StoreBackend = *store
	}
	if flagSet.Changed("notify-url") {
		cfg.NotifyURL = *notifyURL
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if flagSet.Changed("from-start") {
		cfg.FromStart = *fromStart
	}
	if flagSet.Changed("offset-db") {
		cfg.OffsetDBPath = *offsetDB
	}
	if flagSet.Changed("metrics-addr") {
		cfg.MetricsAddr = *metricsAddr
	}

	return nil
}
