package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SteelMorgan/telemetry-ingest/internal/domain"
	"github.com/SteelMorgan/telemetry-ingest/internal/observability"
	"github.com/SteelMorgan/telemetry-ingest/internal/tmlog"
	"github.com/agilira/argus"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// Options controls how often the log is checked for growth
type Options struct {
	WatchInterval    time.Duration // poll interval of the filesystem watcher
	FallbackInterval time.Duration // periodic size check in case watcher events are missed
}

// IngestService turns appended log text into persisted records.
// Cycles never overlap: change events are coalesced into a single pending trigger
// consumed by one worker goroutine.
type IngestService struct {
	tailer    *tmlog.Tailer
	parser    *tmlog.Parser
	persister *Persister
	opts      Options

	cycleMu sync.Mutex
	trigger chan struct{}
}

// NewIngestService creates the service
func NewIngestService(tailer *tmlog.Tailer, parser *tmlog.Parser, persister *Persister, opts Options) (*IngestService, error) {
	if tailer == nil {
		return nil, fmt.Errorf("tailer is required")
	}
	if parser == nil {
		return nil, fmt.Errorf("parser is required")
	}
	if persister == nil {
		return nil, fmt.Errorf("persister is required")
	}
	if opts.WatchInterval <= 0 {
		opts.WatchInterval = 250 * time.Millisecond
	}
	if opts.FallbackInterval <= 0 {
		opts.FallbackInterval = time.Second
	}

	return &IngestService{
		tailer:    tailer,
		parser:    parser,
		persister: persister,
		opts:      opts,
		trigger:   make(chan struct{}, 1),
	}, nil
}

// Trigger requests a cycle. Requests made while one is already pending are merged.
func (s *IngestService) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// RunCycle reads whatever was appended since the last cycle, parses it and persists
// the records. Storage failures are reported in the stats, not as an error.
func (s *IngestService) RunCycle(ctx context.Context) (domain.CycleStats, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	stats := domain.CycleStats{
		CycleID:   uuid.New().String(),
		StartTime: time.Now(),
	}

	ctx, span := observability.StartSpan(ctx, "ingest_cycle",
		attribute.String("cycle_id", stats.CycleID),
		attribute.String("path", s.tailer.Path()),
	)

	chunk, err := s.tailer.Poll(ctx)
	if err != nil {
		stats.EndTime = time.Now()
		observability.EndSpan(span, err, "poll failed")
		observability.ObserveCycle(observability.ResultError, stats.Duration())
		return stats, fmt.Errorf("failed to read log: %w", err)
	}

	if chunk.Truncated {
		stats.Truncated = true
		s.parser.DiscardPending()
		observability.IncTruncation()
		log.Warn().
			Str("path", s.tailer.Path()).
			Int64("size", chunk.Size).
			Msg("Log file truncated, reading from the beginning")
	}

	records, lines := s.parser.Feed(chunk.Data)
	stats.BytesRead = len(chunk.Data)
	stats.LinesRead = lines
	stats.RecordsParsed = len(records)
	observability.AddRead(stats.BytesRead, stats.LinesRead)
	observability.AddParsed(stats.RecordsParsed)

	summary := s.persister.Persist(ctx, records)
	stats.Persisted = summary.Persisted()
	stats.Failed = summary.Failed()
	for _, n := range summary.Dropped {
		stats.Dropped += n
	}

	if err := s.tailer.Commit(ctx); err != nil {
		log.Warn().
			Err(err).
			Str("path", s.tailer.Path()).
			Msg("Failed to save log cursor")
	}

	stats.EndTime = time.Now()
	result := observability.ResultSuccess
	switch {
	case len(stats.Failed) > 0:
		result = observability.ResultError
	case stats.BytesRead == 0:
		result = observability.ResultEmpty
	}
	observability.ObserveCycle(result, stats.Duration())
	span.SetAttributes(
		attribute.Int("bytes", stats.BytesRead),
		attribute.Int("records", stats.RecordsParsed),
	)
	observability.EndSpan(span, nil, "")

	if stats.BytesRead > 0 {
		log.Debug().
			Str("cycle_id", stats.CycleID).
			Int("bytes", stats.BytesRead).
			Int("lines", stats.LinesRead).
			Int("records", stats.RecordsParsed).
			Int("dropped", stats.Dropped).
			Dur("duration", stats.Duration()).
			Msg("Cycle completed")
	}

	return stats, nil
}

// FlushPending parses the incomplete trailing line held by the parser and persists
// what it yields. Called once the log is no longer being watched.
func (s *IngestService) FlushPending(ctx context.Context) PersistSummary {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	records := s.parser.Flush()
	if len(records) == 0 {
		return PersistSummary{}
	}

	log.Info().
		Int("records", len(records)).
		Msg("Persisting records from unterminated last line")
	observability.AddParsed(len(records))
	return s.persister.Persist(ctx, records)
}

// Start watches the log and runs cycles until ctx is cancelled.
// A cycle in flight at cancellation completes before Start returns.
func (s *IngestService) Start(ctx context.Context) error {
	if err := s.tailer.Open(ctx); err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}

	log.Info().
		Str("path", s.tailer.Path()).
		Int64("offset", s.tailer.Offset()).
		Dur("watch_interval", s.opts.WatchInterval).
		Dur("fallback_interval", s.opts.FallbackInterval).
		Msg("Starting telemetry ingest service")

	watcher := s.startWatcher()

	workCtx := context.WithoutCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.worker(ctx, workCtx)
	}()

	// Initial pass over whatever is already past the cursor
	s.Trigger()

	ticker := time.NewTicker(s.opts.FallbackInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Ingest service stopping...")
			<-done
			s.FlushPending(workCtx)
			if watcher != nil {
				if err := watcher.Stop(); err != nil {
					log.Debug().Err(err).Msg("Watcher stop")
				}
			}
			log.Info().Msg("Ingest service stopped")
			return nil
		case <-ticker.C:
			if s.tailer.HasNewData() {
				s.Trigger()
			}
		}
	}
}

// worker consumes triggers until stop is cancelled. Cycles run on work so that
// cancellation does not interrupt a write in progress.
func (s *IngestService) worker(stop, work context.Context) {
	for {
		select {
		case <-stop.Done():
			return
		case <-s.trigger:
			if _, err := s.RunCycle(work); err != nil {
				log.Error().
					Err(err).
					Str("path", s.tailer.Path()).
					Msg("Ingest cycle failed")
			}
		}
	}
}

// startWatcher subscribes to change events for the log path. Returns nil when the
// watcher cannot be started; the periodic size check still drives cycles then.
func (s *IngestService) startWatcher() *argus.Watcher {
	watcher := argus.New(argus.Config{
		PollInterval: s.opts.WatchInterval,
		Audit: argus.AuditConfig{
			Enabled:  false,
			MinLevel: argus.AuditCritical,
		},
		ErrorHandler: func(err error, path string) {
			log.Warn().
				Err(err).
				Str("path", path).
				Msg("File watcher error")
		},
	})

	if err := watcher.Watch(s.tailer.Path(), func(event argus.ChangeEvent) {
		if event.IsDelete {
			return
		}
		s.Trigger()
	}); err != nil {
		log.Warn().
			Err(err).
			Str("path", s.tailer.Path()).
			Msg("Failed to watch log file, relying on periodic size check")
		return nil
	}

	if err := watcher.Start(); err != nil {
		log.Warn().
			Err(err).
			Msg("Failed to start file watcher, relying on periodic size check")
		return nil
	}

	return watcher
}
