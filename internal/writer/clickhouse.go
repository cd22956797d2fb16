package writer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SteelMorgan/telemetry-ingest/internal/clickhouse"
	"github.com/SteelMorgan/telemetry-ingest/internal/domain"
	"github.com/rs/zerolog/log"
)

// ClickHouseStore writes telemetry into ReplacingMergeTree tables, one per category.
// Identity is the sorting key; the latest version wins when parts merge, and
// queries read with FINAL to see last-write-wins values immediately.
type ClickHouseStore struct {
	client *clickhouse.Client
	now    func() time.Time
}

// NewClickHouseStore creates a store on an open client
func NewClickHouseStore(client *clickhouse.Client) *ClickHouseStore {
	return &ClickHouseStore{client: client, now: time.Now}
}

// EnsureIndexes creates the tables. The sorting key doubles as the identity index.
func (s *ClickHouseStore) EnsureIndexes(ctx context.Context) error {
	var errs []error
	for _, table := range domain.Collections() {
		if err := s.client.Exec(ctx, clickHouseTableDDL(table)); err != nil {
			log.Error().Err(err).Str("table", table).Msg("Failed to create telemetry table")
			errs = append(errs, fmt.Errorf("failed to create table %s: %w", table, err))
			continue
		}
		log.Info().
			Str("table", table).
			Str("engine", "ReplacingMergeTree").
			Msg("Ensured telemetry table")
	}
	return errors.Join(errs...)
}

// Upsert appends the batch with a fresh version. ClickHouse cannot tell inserts
// from replacements at write time, so existing identities are looked up first.
func (s *ClickHouseStore) Upsert(ctx context.Context, collection string, records []domain.TelemetryRecord) (UpsertResult, error) {
	if err := checkCollection(collection); err != nil {
		return UpsertResult{}, err
	}
	if len(records) == 0 {
		return UpsertResult{}, nil
	}

	existing, err := s.countExisting(ctx, collection, records)
	if err != nil {
		log.Debug().Err(err).Str("table", collection).Msg("Failed to count existing rows, reporting all as inserted")
		existing = 0
	}

	batch, err := s.client.Conn().PrepareBatch(ctx, fmt.Sprintf(
		"INSERT INTO %s (tm_received_time, tm_id, parameter, value_kind, value_int, value_float, value_text, version)",
		collection))
	if err != nil {
		return UpsertResult{}, fmt.Errorf("failed to prepare batch: %w", err)
	}

	version := uint64(s.now().UnixNano())
	for _, r := range records {
		kind, i, f, str := domain.ValueColumns(r.Value)
		if err := batch.Append(
			r.Timestamp,
			int32(r.TMID),
			r.Parameter,
			kind,
			i,
			f,
			str,
			version,
		); err != nil {
			_ = batch.Abort()
			return UpsertResult{}, fmt.Errorf("failed to append %s to batch: %w", r.Key(), err)
		}
	}

	if err := batch.Send(); err != nil {
		return UpsertResult{}, fmt.Errorf("failed to send batch to %s: %w", collection, err)
	}

	n := int64(len(records))
	return UpsertResult{Inserted: n - existing, Matched: existing, Modified: existing}, nil
}

// countExisting counts identities of the batch already present in the table
func (s *ClickHouseStore) countExisting(ctx context.Context, table string, records []domain.TelemetryRecord) (int64, error) {
	keys := make(map[domain.RecordKey]struct{}, len(records))
	timestamps := make([]int64, 0, len(records))
	seenTS := make(map[int64]struct{})
	for _, r := range records {
		keys[r.Key()] = struct{}{}
		if _, ok := seenTS[r.Timestamp]; !ok {
			seenTS[r.Timestamp] = struct{}{}
			timestamps = append(timestamps, r.Timestamp)
		}
	}

	rows, err := s.client.Query(ctx, fmt.Sprintf(
		"SELECT DISTINCT tm_received_time, tm_id, parameter FROM %s WHERE tm_received_time IN (?)",
		table), timestamps)
	if err != nil {
		return 0, fmt.Errorf("failed to query existing rows: %w", err)
	}
	defer rows.Close()

	var count int64
	for rows.Next() {
		var (
			ts    int64
			tmID  int32
			param string
		)
		if err := rows.Scan(&ts, &tmID, &param); err != nil {
			return 0, fmt.Errorf("failed to scan existing row: %w", err)
		}
		if _, ok := keys[domain.RecordKey{Timestamp: ts, TMID: int(tmID), Parameter: param}]; ok {
			count++
		}
	}
	return count, rows.Err()
}

// Close closes the client
func (s *ClickHouseStore) Close() error {
	return s.client.Close()
}

func clickHouseTableDDL(table string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	tm_received_time Int64,
	tm_id Int32,
	parameter String,
	value_kind LowCardinality(String),
	value_int Nullable(Int64),
	value_float Nullable(Float64),
	value_text Nullable(String),
	version UInt64
)
ENGINE = ReplacingMergeTree(version)
ORDER BY (tm_received_time, tm_id, parameter)`, table)
}
