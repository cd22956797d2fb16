package writer

import (
	"context"
	"errors"
	"fmt"

	"github.com/SteelMorgan/telemetry-ingest/internal/domain"
)

// IndexName is the name of the identity index on every telemetry collection
const IndexName = "telemetry_index"

// ErrUnknownCollection is returned for a collection outside the telemetry set
var ErrUnknownCollection = errors.New("unknown telemetry collection")

// Store persists telemetry records into per-category collections
// Implementations: MongoDB (primary), PostgreSQL, ClickHouse, memory
type Store interface {
	// EnsureIndexes creates the collections/tables and the unique identity index
	// on (tm_received_time, tm_id, parameter)
	EnsureIndexes(ctx context.Context) error

	// Upsert writes records keyed by identity; an existing record gets the new value.
	// Records in one call must have distinct keys.
	Upsert(ctx context.Context, collection string, records []domain.TelemetryRecord) (UpsertResult, error)

	// Close releases the connection
	Close() error
}

// UpsertResult counts how an upsert batch was applied
type UpsertResult struct {
	Inserted int64 // new identities
	Modified int64 // existing identities whose value changed
	Matched  int64 // existing identities, changed or not
}

// Total returns the number of records the store acknowledged
func (r UpsertResult) Total() int64 {
	return r.Inserted + r.Matched
}

// checkCollection rejects names outside the known telemetry collections
func checkCollection(name string) error {
	for _, c := range domain.Collections() {
		if c == name {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownCollection, name)
}
