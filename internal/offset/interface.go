package offset

import (
	"context"
	"time"
)

// LogCursor is the persisted read position of one telemetry log file
type LogCursor struct {
	Path      string
	Offset    int64 // bytes already consumed
	Size      int64 // file size observed at the last poll
	UpdatedAt time.Time
}

// CursorStore stores and retrieves log cursors
// Implementations: BoltDB (persistent), memory (tests and ephemeral runs)
type CursorStore interface {
	// Get retrieves the cursor for a given file
	// Returns nil without error if no cursor is stored
	Get(ctx context.Context, path string) (*LogCursor, error)

	// Save stores the cursor, replacing any previous one for the same path
	Save(ctx context.Context, cursor *LogCursor) error

	// Delete removes the cursor for a given file
	Delete(ctx context.Context, path string) error

	// Close closes the cursor store
	Close() error
}
