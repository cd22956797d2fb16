package writer

import (
	"context"
	"reflect"
	"sort"
	"sync"

	"github.com/SteelMorgan/telemetry-ingest/internal/domain"
)

// MemoryStore keeps records in process memory. Used for dry runs and tests.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[domain.RecordKey]domain.TelemetryRecord
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[domain.RecordKey]domain.TelemetryRecord),
	}
}

// EnsureIndexes creates the empty collections
func (s *MemoryStore) EnsureIndexes(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range domain.Collections() {
		if _, ok := s.collections[name]; !ok {
			s.collections[name] = make(map[domain.RecordKey]domain.TelemetryRecord)
		}
	}
	return nil
}

// Upsert stores records by identity key
func (s *MemoryStore) Upsert(ctx context.Context, collection string, records []domain.TelemetryRecord) (UpsertResult, error) {
	if err := checkCollection(collection); err != nil {
		return UpsertResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return UpsertResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[domain.RecordKey]domain.TelemetryRecord)
		s.collections[collection] = coll
	}

	var res UpsertResult
	for _, r := range records {
		key := r.Key()
		if prev, exists := coll[key]; exists {
			res.Matched++
			if !reflect.DeepEqual(prev.Value, r.Value) {
				res.Modified++
			}
		} else {
			res.Inserted++
		}
		coll[key] = r
	}
	return res, nil
}

// Records returns the stored records of a collection ordered by identity
func (s *MemoryStore) Records(collection string) []domain.TelemetryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collections[collection]
	out := make([]domain.TelemetryRecord, 0, len(coll))
	for _, r := range coll {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		if a.TMID != b.TMID {
			return a.TMID < b.TMID
		}
		return a.Parameter < b.Parameter
	})
	return out
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
