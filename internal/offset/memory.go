package offset

import (
	"context"
	"sync"
)

// MemoryStore keeps cursors in process memory; nothing survives a restart
type MemoryStore struct {
	mu      sync.Mutex
	cursors map[string]LogCursor
}

// NewMemoryStore creates an empty in-memory cursor store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cursors: make(map[string]LogCursor)}
}

func (s *MemoryStore) Get(ctx context.Context, path string) (*LogCursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cursors[path]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *MemoryStore) Save(ctx context.Context, cursor *LogCursor) error {
	if cursor == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursors[cursor.Path] = *cursor
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cursors, path)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
