package service

import (
	"context"
	"time"

	"github.com/SteelMorgan/telemetry-ingest/internal/allowlist"
	"github.com/SteelMorgan/telemetry-ingest/internal/domain"
	"github.com/SteelMorgan/telemetry-ingest/internal/mapping"
	"github.com/SteelMorgan/telemetry-ingest/internal/notify"
	"github.com/SteelMorgan/telemetry-ingest/internal/observability"
	"github.com/SteelMorgan/telemetry-ingest/internal/writer"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// Reasons a record never reaches the store
const (
	DropUnknownCategory = "unknown_category"
	DropNotAllowed      = "tm_id_not_allowed"
)

// PersisterOptions bounds the external calls made per category
type PersisterOptions struct {
	StoreTimeout  time.Duration
	NotifyTimeout time.Duration
}

// CategoryResult is the outcome of writing one category batch
type CategoryResult struct {
	Category   domain.Category
	Collection string
	Records    int
	Result     writer.UpsertResult
	Err        error
	Notified   bool
}

// PersistSummary describes what happened to one parsed batch
type PersistSummary struct {
	Categories []CategoryResult
	Duplicates int            // records superseded by a later record with the same identity
	Dropped    map[string]int // by reason
}

// Persisted returns the records acknowledged per collection
func (s PersistSummary) Persisted() map[string]int {
	out := make(map[string]int)
	for _, c := range s.Categories {
		if c.Err == nil {
			out[c.Collection] = int(c.Result.Total())
		}
	}
	return out
}

// Failed returns the records lost per collection
func (s PersistSummary) Failed() map[string]int {
	out := make(map[string]int)
	for _, c := range s.Categories {
		if c.Err != nil {
			out[c.Collection] = c.Records
		}
	}
	return out
}

// Persister writes a parsed batch to per-category collections and announces each
// successful write. Failures are isolated per category.
type Persister struct {
	store    writer.Store
	allow    *allowlist.Config
	notifier notify.Notifier
	opts     PersisterOptions
}

// NewPersister creates a persister. notifier may be nil to disable notifications.
func NewPersister(store writer.Store, allow *allowlist.Config, notifier notify.Notifier, opts PersisterOptions) *Persister {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 10 * time.Second
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = notify.DefaultTimeout
	}
	return &Persister{
		store:    store,
		allow:    allow,
		notifier: notifier,
		opts:     opts,
	}
}

// Persist dedupes, partitions, filters and upserts records
func (p *Persister) Persist(ctx context.Context, records []domain.TelemetryRecord) PersistSummary {
	summary := PersistSummary{Dropped: make(map[string]int)}
	if len(records) == 0 {
		return summary
	}

	ctx, span := observability.StartSpan(ctx, "persist_batch",
		attribute.Int("records", len(records)),
	)
	defer span.End()

	unique := dedupeByKey(records)
	summary.Duplicates = len(records) - len(unique)

	partitions := mapping.Partition(unique)

	if unknown := partitions[domain.CategoryUnknown]; len(unknown) > 0 {
		for _, r := range unknown {
			log.Warn().
				Int("tm_id", r.TMID).
				Str("parameter", r.Parameter).
				Msg("Unknown TM id range, dropping record")
		}
		summary.Dropped[DropUnknownCategory] += len(unknown)
		observability.AddDropped(DropUnknownCategory, len(unknown))
	}

	for _, category := range domain.PersistedCategories {
		items := partitions[category]
		if len(items) == 0 {
			continue
		}

		allowed := p.filterAllowed(category, items)
		if dropped := len(items) - len(allowed); dropped > 0 {
			log.Debug().
				Str("category", string(category)).
				Int("dropped", dropped).
				Msg("Dropped records with tm_id outside the allow-list")
			summary.Dropped[DropNotAllowed] += dropped
			observability.AddDropped(DropNotAllowed, dropped)
		}
		if len(allowed) == 0 {
			continue
		}

		summary.Categories = append(summary.Categories, p.writeCategory(ctx, category, allowed))
	}

	return summary
}

// writeCategory upserts one category batch and notifies on success
func (p *Persister) writeCategory(ctx context.Context, category domain.Category, items []domain.TelemetryRecord) CategoryResult {
	collection := category.Collection()
	res := CategoryResult{
		Category:   category,
		Collection: collection,
		Records:    len(items),
	}

	log.Info().
		Str("category", string(category)).
		Int("records", len(items)).
		Msg("Processing category batch")

	spanCtx, span := observability.StartSpan(ctx, "upsert",
		attribute.String("collection", collection),
		attribute.Int("records", len(items)),
	)
	storeCtx, cancel := context.WithTimeout(spanCtx, p.opts.StoreTimeout)
	start := time.Now()
	res.Result, res.Err = p.store.Upsert(storeCtx, collection, items)
	cancel()
	observability.EndSpan(span, res.Err, "upsert "+collection)

	if res.Err != nil {
		observability.ObserveUpsert(collection, observability.ResultError, time.Since(start))
		log.Error().
			Err(res.Err).
			Str("category", string(category)).
			Str("collection", collection).
			Int("records", len(items)).
			Msg("Bulk write failed")
		return res
	}

	observability.ObserveUpsert(collection, observability.ResultSuccess, time.Since(start))
	observability.AddPersisted(collection, res.Result.Inserted, res.Result.Matched)
	log.Info().
		Str("category", string(category)).
		Str("collection", collection).
		Int64("inserted", res.Result.Inserted).
		Int64("modified", res.Result.Modified).
		Msg("Bulk write completed")

	res.Notified = p.notify(ctx, collection, items)
	return res
}

// notify is best effort; failures are logged and never returned
func (p *Persister) notify(ctx context.Context, collection string, items []domain.TelemetryRecord) bool {
	if p.notifier == nil {
		return false
	}

	notifyCtx, cancel := context.WithTimeout(ctx, p.opts.NotifyTimeout)
	defer cancel()

	if err := p.notifier.Notify(notifyCtx, collection, items); err != nil {
		observability.IncNotify(observability.ResultError)
		log.Warn().
			Err(err).
			Str("collection", collection).
			Msg("Could not send update notification")
		return false
	}

	observability.IncNotify(observability.ResultSuccess)
	return true
}

// filterAllowed keeps records whose tm_id has an allow-list entry for the category
func (p *Persister) filterAllowed(category domain.Category, items []domain.TelemetryRecord) []domain.TelemetryRecord {
	out := items[:0:0]
	for _, r := range items {
		if p.allow.HasTMID(category, r.TMID) {
			out = append(out, r)
		}
	}
	return out
}

// dedupeByKey keeps one record per identity: the last occurrence's value at the
// first occurrence's position
func dedupeByKey(records []domain.TelemetryRecord) []domain.TelemetryRecord {
	index := make(map[domain.RecordKey]int, len(records))
	out := make([]domain.TelemetryRecord, 0, len(records))
	for _, r := range records {
		key := r.Key()
		if i, ok := index[key]; ok {
			out[i] = r
			continue
		}
		index[key] = len(out)
		out = append(out, r)
	}
	return out
}
