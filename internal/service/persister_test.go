package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/SteelMorgan/telemetry-ingest/internal/allowlist"
	"github.com/SteelMorgan/telemetry-ingest/internal/domain"
	"github.com/SteelMorgan/telemetry-ingest/internal/notify"
	"github.com/SteelMorgan/telemetry-ingest/internal/writer"
)

func testAllowList() *allowlist.Config {
	return allowlist.FromMap(map[domain.Category]map[string][]string{
		domain.CategoryEPS: {
			"205": {"bus_voltage", "bus_current"},
		},
		domain.CategoryUHF: {
			"801": {"rssi", "adc", "temperature", "mode"},
		},
	})
}

// failingStore fails writes to one collection and delegates the rest
type failingStore struct {
	*writer.MemoryStore
	failCollection string
}

func (s *failingStore) Upsert(ctx context.Context, collection string, records []domain.TelemetryRecord) (writer.UpsertResult, error) {
	if collection == s.failCollection {
		return writer.UpsertResult{}, errors.New("connection reset")
	}
	return s.MemoryStore.Upsert(ctx, collection, records)
}

// recordingNotifier captures notifications in memory
type recordingNotifier struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func (n *recordingNotifier) Notify(ctx context.Context, collection string, records []domain.TelemetryRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.calls == nil {
		n.calls = make(map[string]int)
	}
	n.calls[collection] += len(records)
	return n.err
}

func TestPersister_PartitionsAndFilters(t *testing.T) {
	store := writer.NewMemoryStore()
	p := NewPersister(store, testAllowList(), nil, PersisterOptions{})

	records := []domain.TelemetryRecord{
		{Timestamp: 100, TMID: 205, Parameter: "bus_voltage", Value: 7.4},
		{Timestamp: 100, TMID: 801, Parameter: "rssi", Value: int64(-75)},
		{Timestamp: 100, TMID: 210, Parameter: "bus_voltage", Value: 7.1}, // tm_id not configured
		{Timestamp: 100, TMID: 42, Parameter: "stray", Value: int64(1)},   // no category
	}

	summary := p.Persist(context.Background(), records)

	if got := len(store.Records("eps_telemetry")); got != 1 {
		t.Errorf("eps_telemetry records = %d, want 1", got)
	}
	if got := len(store.Records("uhf_telemetry")); got != 1 {
		t.Errorf("uhf_telemetry records = %d, want 1", got)
	}
	if got := len(store.Records("obc_telemetry")); got != 0 {
		t.Errorf("obc_telemetry records = %d, want 0", got)
	}
	if summary.Dropped[DropUnknownCategory] != 1 {
		t.Errorf("unknown category drops = %d, want 1", summary.Dropped[DropUnknownCategory])
	}
	if summary.Dropped[DropNotAllowed] != 1 {
		t.Errorf("not allowed drops = %d, want 1", summary.Dropped[DropNotAllowed])
	}
	if persisted := summary.Persisted(); persisted["eps_telemetry"] != 1 || persisted["uhf_telemetry"] != 1 {
		t.Errorf("Persisted() = %v", persisted)
	}
}

func TestPersister_DedupesLastWins(t *testing.T) {
	store := writer.NewMemoryStore()
	p := NewPersister(store, testAllowList(), nil, PersisterOptions{})

	summary := p.Persist(context.Background(), []domain.TelemetryRecord{
		{Timestamp: 100, TMID: 801, Parameter: "rssi", Value: int64(-75)},
		{Timestamp: 100, TMID: 801, Parameter: "adc", Value: int64(512)},
		{Timestamp: 100, TMID: 801, Parameter: "rssi", Value: int64(-80)},
	})

	if summary.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", summary.Duplicates)
	}

	got := store.Records("uhf_telemetry")
	if len(got) != 2 {
		t.Fatalf("records = %d, want 2", len(got))
	}
	for _, r := range got {
		if r.Parameter == "rssi" && r.Value != int64(-80) {
			t.Errorf("rssi = %v, want -80", r.Value)
		}
	}
}

func TestPersister_Idempotent(t *testing.T) {
	store := writer.NewMemoryStore()
	p := NewPersister(store, testAllowList(), nil, PersisterOptions{})
	records := []domain.TelemetryRecord{
		{Timestamp: 100, TMID: 205, Parameter: "bus_voltage", Value: 7.4},
	}

	first := p.Persist(context.Background(), records)
	second := p.Persist(context.Background(), records)

	if first.Categories[0].Result.Inserted != 1 {
		t.Errorf("first Inserted = %d, want 1", first.Categories[0].Result.Inserted)
	}
	if r := second.Categories[0].Result; r.Inserted != 0 || r.Modified != 0 || r.Matched != 1 {
		t.Errorf("second result = %+v, want only Matched=1", r)
	}
	if got := len(store.Records("eps_telemetry")); got != 1 {
		t.Errorf("records = %d, want 1", got)
	}
}

func TestPersister_IsolatesCategoryFailures(t *testing.T) {
	store := &failingStore{MemoryStore: writer.NewMemoryStore(), failCollection: "eps_telemetry"}
	notifier := &recordingNotifier{}
	p := NewPersister(store, testAllowList(), notifier, PersisterOptions{})

	summary := p.Persist(context.Background(), []domain.TelemetryRecord{
		{Timestamp: 100, TMID: 205, Parameter: "bus_voltage", Value: 7.4},
		{Timestamp: 100, TMID: 801, Parameter: "rssi", Value: int64(-75)},
	})

	if failed := summary.Failed(); failed["eps_telemetry"] != 1 {
		t.Errorf("Failed() = %v, want eps_telemetry: 1", failed)
	}
	if got := len(store.Records("uhf_telemetry")); got != 1 {
		t.Errorf("uhf_telemetry records = %d, want 1", got)
	}
	if notifier.calls["eps_telemetry"] != 0 {
		t.Error("failed category must not be notified")
	}
	if notifier.calls["uhf_telemetry"] != 1 {
		t.Errorf("uhf notifications = %d, want 1", notifier.calls["uhf_telemetry"])
	}
}

func TestPersister_NotifyErrorIsSwallowed(t *testing.T) {
	store := writer.NewMemoryStore()
	notifier := &recordingNotifier{err: errors.New("dashboard down")}
	p := NewPersister(store, testAllowList(), notifier, PersisterOptions{})

	summary := p.Persist(context.Background(), []domain.TelemetryRecord{
		{Timestamp: 100, TMID: 801, Parameter: "rssi", Value: int64(-75)},
	})

	if len(summary.Categories) != 1 {
		t.Fatalf("categories = %d, want 1", len(summary.Categories))
	}
	c := summary.Categories[0]
	if c.Err != nil {
		t.Errorf("Err = %v, want nil", c.Err)
	}
	if c.Notified {
		t.Error("Notified = true, want false")
	}
	if got := len(store.Records("uhf_telemetry")); got != 1 {
		t.Errorf("records = %d, want 1", got)
	}
}

func TestPersister_PostsToDashboard(t *testing.T) {
	var (
		mu       sync.Mutex
		payloads []map[string]json.RawMessage
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		payloads = append(payloads, body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier, err := notify.NewHTTPNotifier(server.URL)
	if err != nil {
		t.Fatalf("NewHTTPNotifier() error = %v", err)
	}
	p := NewPersister(writer.NewMemoryStore(), testAllowList(), notifier, PersisterOptions{
		NotifyTimeout: time.Second,
	})

	summary := p.Persist(context.Background(), []domain.TelemetryRecord{
		{Timestamp: 100, TMID: 801, Parameter: "rssi", Value: int64(-75)},
	})
	if !summary.Categories[0].Notified {
		t.Error("Notified = false, want true")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(payloads) != 1 {
		t.Fatalf("payloads = %d, want 1", len(payloads))
	}
	if string(payloads[0]["collection"]) != `"uhf_telemetry"` {
		t.Errorf("collection = %s", payloads[0]["collection"])
	}
}

func TestPersister_EmptyBatch(t *testing.T) {
	notifier := &recordingNotifier{}
	p := NewPersister(writer.NewMemoryStore(), testAllowList(), notifier, PersisterOptions{})

	summary := p.Persist(context.Background(), nil)
	if len(summary.Categories) != 0 || len(notifier.calls) != 0 {
		t.Errorf("empty batch produced work: %+v", summary)
	}
}
