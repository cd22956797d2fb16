package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SteelMorgan/telemetry-ingest/internal/allowlist"
	"github.com/SteelMorgan/telemetry-ingest/internal/clickhouse"
	"github.com/SteelMorgan/telemetry-ingest/internal/config"
	"github.com/SteelMorgan/telemetry-ingest/internal/notify"
	"github.com/SteelMorgan/telemetry-ingest/internal/observability"
	"github.com/SteelMorgan/telemetry-ingest/internal/offset"
	"github.com/SteelMorgan/telemetry-ingest/internal/retry"
	"github.com/SteelMorgan/telemetry-ingest/internal/service"
	"github.com/SteelMorgan/telemetry-ingest/internal/tmlog"
	"github.com/SteelMorgan/telemetry-ingest/internal/writer"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/attribute"
)

const version = "0.1.0"

func main() {
	// Load configuration
	cfg := config.FromEnv()
	if err := applyFlags(cfg, os.Args[1:], os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Invalid arguments: %v\n", err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	observability.InitLogger(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("version", version).
		Str("log", cfg.LogPath).
		Str("store", cfg.StoreBackend).
		Msg("Starting telemetry ingest")

	// Initialize tracer (no-op when disabled)
	shutdownTracer, err := observability.InitTracer(observability.TracerConfig{
		ServiceName:    "telemetry-ingest",
		ServiceVersion: version,
		Endpoint:       cfg.TracingEndpoint,
		Protocol:       cfg.TracingProtocol,
		SampleRatio:    cfg.TracingSample,
		Enabled:        cfg.TracingEnabled,
		Attributes: []attribute.KeyValue{
			attribute.String("telemetry.log_path", cfg.LogPath),
			attribute.String("telemetry.store", cfg.StoreBackend),
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize tracer")
	} else {
		defer shutdownTracer(context.Background())
	}

	// Metrics
	observability.InitMetrics()
	var shutdownMetrics func(context.Context) error
	if cfg.MetricsAddr != "" {
		shutdownMetrics = observability.StartMetricsServer(cfg.MetricsAddr)
	}

	// Allow-lists are required; nothing can be persisted without them
	allow, err := allowlist.Load(cfg.AllowListDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.AllowListDir).Msg("Failed to load allow-lists")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("store", cfg.StoreBackend).Msg("Failed to connect to store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close store")
		}
	}()

	if err := store.EnsureIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("Index setup incomplete, continuing")
	}

	// Cursor persistence (optional)
	var cursors offset.CursorStore
	if cfg.OffsetDBPath != "" {
		boltStore, err := offset.NewBoltDBStore(cfg.OffsetDBPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.OffsetDBPath).Msg("Failed to open cursor store")
		}
		cursors = boltStore
		defer func() {
			if err := boltStore.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close cursor store")
			}
		}()
	}

	// Notifications (optional)
	var notifier notify.Notifier
	if cfg.NotifyURL != "" {
		httpNotifier, err := notify.NewHTTPNotifier(cfg.NotifyURL, notify.WithTimeout(cfg.NotifyTimeout))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create notifier")
		}
		notifier = httpNotifier
		log.Info().
			Str("url", httpNotifier.URL()).
			Dur("timeout", cfg.NotifyTimeout).
			Msg("Dashboard notifications enabled")
	} else {
		log.Info().Msg("Dashboard notifications disabled")
	}

	tailer := tmlog.NewTailer(cfg.LogPath, tmlog.TailerOptions{
		FromStart: cfg.FromStart,
		Cursors:   cursors,
	})
	parser := tmlog.NewParser(allow)
	persister := service.NewPersister(store, allow, notifier, service.PersisterOptions{
		StoreTimeout:  cfg.StoreTimeout,
		NotifyTimeout: cfg.NotifyTimeout,
	})

	ingestSvc, err := service.NewIngestService(tailer, parser, persister, service.Options{
		WatchInterval:    cfg.WatchInterval,
		FallbackInterval: cfg.FallbackInterval,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create ingest service")
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- ingestSvc.Start(ctx)
	}()

	log.Info().Msg("Ingest service started successfully")

	// Wait for shutdown signal or error
	select {
	case <-sigChan:
		log.Info().Msg("Received shutdown signal")
		cancel()
		if err := <-errChan; err != nil {
			log.Error().Err(err).Msg("Error during shutdown")
		}
	case err := <-errChan:
		if err != nil {
			log.Error().Err(err).Msg("Ingest service error")
		}
	}

	if shutdownMetrics != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		if err := shutdownMetrics(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Metrics server shutdown")
		}
		cancelShutdown()
	}

	log.Info().Msg("Telemetry ingest stopped")
}

// openStore connects the configured backend, retrying transient connect errors
func openStore(ctx context.Context, cfg *config.Config) (writer.Store, error) {
	retryCfg := retry.NewConfig(cfg.ConnectAttempts, cfg.ConnectDelay, cfg.ConnectMaxDelay, 2.0)

	switch cfg.StoreBackend {
	case config.StoreMongo:
		store, err := writer.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, retryCfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StorePostgres:
		store, err := writer.OpenPostgresStore(ctx, cfg.PostgresDSN, retryCfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoreClickHouse:
		client, err := clickhouse.NewClient(ctx, clickhouse.Options{
			Host:     cfg.ClickHouseHost,
			Port:     cfg.ClickHousePort,
			Database: cfg.ClickHouseDB,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePass,
		}, retryCfg)
		if err != nil {
			return nil, err
		}
		return writer.NewClickHouseStore(client), nil
	case config.StoreMemory:
		log.Warn().Msg("Memory store selected, records are not persisted")
		return writer.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
}
