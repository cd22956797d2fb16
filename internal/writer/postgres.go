package writer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/SteelMorgan/telemetry-ingest/internal/domain"
	"github.com/SteelMorgan/telemetry-ingest/internal/retry"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
)

// identityPredicate restricts the unique index to well-formed rows, like the
// partial index used on MongoDB
const identityPredicate = "tm_id IS NOT NULL AND parameter IS NOT NULL"

// PostgresStore writes telemetry into one PostgreSQL table per category
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgresStore opens a pgx-backed handle for dsn and pings it with retry
func OpenPostgresStore(ctx context.Context, dsn string, retryCfg retry.Config) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := retry.Do(ctx, retryCfg, func() error {
		return db.PingContext(ctx)
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	log.Info().Msg("Connected to PostgreSQL")
	return NewPostgresStore(db), nil
}

// EnsureIndexes creates the tables and their partial unique identity index
func (s *PostgresStore) EnsureIndexes(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("postgres store: nil db")
	}

	var errs []error
	for _, table := range domain.Collections() {
		if _, err := s.db.ExecContext(ctx, createTableSQL(table)); err != nil {
			log.Error().Err(err).Str("table", table).Msg("Failed to create table")
			errs = append(errs, fmt.Errorf("failed to create table %s: %w", table, err))
			continue
		}
		if _, err := s.db.ExecContext(ctx, createIndexSQL(table)); err != nil {
			log.Error().Err(err).Str("table", table).Msg("Failed to create identity index")
			errs = append(errs, fmt.Errorf("failed to create index on %s: %w", table, err))
			continue
		}

		log.Info().
			Str("table", table).
			Str("index", table+"_"+IndexName).
			Msg("Ensured identity index")
	}
	return errors.Join(errs...)
}

// Upsert inserts or updates every record inside one transaction
func (s *PostgresStore) Upsert(ctx context.Context, collection string, records []domain.TelemetryRecord) (UpsertResult, error) {
	if s == nil || s.db == nil {
		return UpsertResult{}, errors.New("postgres store: nil db")
	}
	if err := checkCollection(collection); err != nil {
		return UpsertResult{}, err
	}
	if len(records) == 0 {
		return UpsertResult{}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, upsertSQL(collection))
	if err != nil {
		_ = tx.Rollback()
		return UpsertResult{}, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	var res UpsertResult
	for _, r := range records {
		kind, i, f, str := domain.ValueColumns(r.Value)

		valueInt := sql.NullInt64{}
		if i != nil {
			valueInt = sql.NullInt64{Int64: *i, Valid: true}
		}
		valueFloat := sql.NullFloat64{}
		if f != nil {
			valueFloat = sql.NullFloat64{Float64: *f, Valid: true}
		}
		valueText := sql.NullString{}
		if str != nil {
			valueText = sql.NullString{String: *str, Valid: true}
		}

		var inserted bool
		err := stmt.QueryRowContext(
			ctx,
			r.Timestamp,
			r.TMID,
			r.Parameter,
			kind,
			valueInt,
			valueFloat,
			valueText,
		).Scan(&inserted)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// conflicting row already holds the same value
			res.Matched++
		case err != nil:
			_ = tx.Rollback()
			return UpsertResult{}, fmt.Errorf("failed to upsert %s into %s: %w", r.Key(), collection, err)
		case inserted:
			res.Inserted++
		default:
			res.Matched++
			res.Modified++
		}
	}

	if err := tx.Commit(); err != nil {
		return UpsertResult{}, fmt.Errorf("failed to commit upsert: %w", err)
	}
	return res, nil
}

// Close closes the database handle
func (s *PostgresStore) Close() error {
	log.Info().Msg("Closing PostgreSQL connection")
	return s.db.Close()
}

func createTableSQL(table string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	tm_received_time BIGINT,
	tm_id INTEGER,
	parameter TEXT,
	value_kind TEXT NOT NULL,
	value_int BIGINT,
	value_float DOUBLE PRECISION,
	value_text TEXT,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, table)
}

func createIndexSQL(table string) string {
	return fmt.Sprintf(`
CREATE UNIQUE INDEX IF NOT EXISTS %s_%s
ON %s (tm_received_time, tm_id, parameter)
WHERE %s`, table, IndexName, table, identityPredicate)
}

// upsertSQL returns one row per written record: inserted is true for a new identity
// (xmax is 0 only for freshly inserted tuples). An unchanged value returns no row.
func upsertSQL(table string) string {
	return fmt.Sprintf(`
INSERT INTO %[1]s (
	tm_received_time,
	tm_id,
	parameter,
	value_kind,
	value_int,
	value_float,
	value_text
) VALUES (
	$1, $2, $3, $4, $5, $6, $7
)
ON CONFLICT (tm_received_time, tm_id, parameter) WHERE %[2]s
DO UPDATE SET
	value_kind = EXCLUDED.value_kind,
	value_int = EXCLUDED.value_int,
	value_float = EXCLUDED.value_float,
	value_text = EXCLUDED.value_text,
	updated_at = NOW()
WHERE (%[1]s.value_kind, %[1]s.value_int, %[1]s.value_float, %[1]s.value_text)
	IS DISTINCT FROM (EXCLUDED.value_kind, EXCLUDED.value_int, EXCLUDED.value_float, EXCLUDED.value_text)
RETURNING (xmax = 0) AS inserted`, table, identityPredicate)
}
