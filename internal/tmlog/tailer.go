package tmlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/SteelMorgan/telemetry-ingest/internal/offset"
	"github.com/rs/zerolog/log"
)

// Chunk is the text appended to the log since the previous poll
type Chunk struct {
	Data      []byte
	Truncated bool  // file shrank; reading restarted from offset 0
	Offset    int64 // position the chunk starts at
	Size      int64 // file size observed by this poll
}

// TailerOptions configures where a Tailer starts reading
type TailerOptions struct {
	// FromStart reads existing content on first open instead of starting at end of file
	FromStart bool
	// Cursors persists the read position across restarts; nil disables persistence
	Cursors offset.CursorStore
}

// Tailer reads a single growing log file incrementally.
// Poll and Commit must not be called concurrently; HasNewData may be called from any goroutine.
type Tailer struct {
	path    string
	opts    TailerOptions
	mu      sync.Mutex
	opened  bool
	offset  int64
	size    int64
	missing bool
}

// NewTailer creates a tailer for path
func NewTailer(path string, opts TailerOptions) *Tailer {
	return &Tailer{
		path: path,
		opts: opts,
	}
}

// Path returns the tailed file path
func (t *Tailer) Path() string {
	return t.path
}

// Offset returns the number of bytes consumed so far
func (t *Tailer) Offset() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offset
}

// Open positions the tailer: stored cursor first, then start or end of file.
// Poll calls it on first use; calling it explicitly only makes the choice earlier.
func (t *Tailer) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.openLocked(ctx)
}

func (t *Tailer) openLocked(ctx context.Context) error {
	if t.opened {
		return nil
	}

	var size int64
	stat, err := os.Stat(t.path)
	switch {
	case err == nil:
		size = stat.Size()
	case errors.Is(err, os.ErrNotExist):
		log.Warn().Str("file", t.path).Msg("Telemetry log does not exist yet, waiting for it")
		t.missing = true
	default:
		return fmt.Errorf("failed to stat file: %w", err)
	}

	start := size
	if t.opts.FromStart {
		start = 0
	}

	if t.opts.Cursors != nil {
		stored, err := t.opts.Cursors.Get(ctx, t.path)
		if err != nil {
			log.Warn().Err(err).Str("file", t.path).Msg("Failed to load cursor, ignoring it")
		} else if stored != nil {
			if stored.Offset <= size {
				start = stored.Offset
				log.Info().
					Str("file", t.path).
					Int64("offset_bytes", stored.Offset).
					Int64("file_size", size).
					Msg("Resumed from saved cursor")
			} else {
				log.Info().
					Str("file", t.path).
					Int64("saved_offset", stored.Offset).
					Int64("file_size", size).
					Msg("File shrank since last run, ignoring saved cursor")
			}
		}
	}

	t.offset = start
	t.size = size
	t.opened = true

	log.Info().
		Str("file", t.path).
		Int64("offset_bytes", start).
		Int64("file_size", size).
		Bool("from_start", t.opts.FromStart).
		Msg("Opened telemetry log")

	return nil
}

// HasNewData reports whether the file size differs from the read offset.
// Bytes left unread by a failed poll keep it true until a poll consumes them.
func (t *Tailer) HasNewData() bool {
	stat, err := os.Stat(t.path)
	if err != nil {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return stat.Size() != t.offset
}

// Poll returns the bytes appended since the last poll. A missing file yields an
// empty chunk. A file smaller than the read offset is treated as truncated and
// read again from the beginning.
func (t *Tailer) Poll(ctx context.Context) (Chunk, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.openLocked(ctx); err != nil {
		return Chunk{}, err
	}

	stat, err := os.Stat(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if !t.missing {
				log.Warn().Str("file", t.path).Msg("Telemetry log disappeared")
				t.missing = true
			}
			return Chunk{Offset: t.offset}, nil
		}
		return Chunk{}, fmt.Errorf("failed to stat file: %w", err)
	}
	if t.missing {
		log.Info().Str("file", t.path).Msg("Telemetry log appeared")
		t.missing = false
	}

	size := stat.Size()
	chunk := Chunk{Offset: t.offset, Size: size}

	if size < t.offset {
		log.Warn().
			Str("file", t.path).
			Int64("offset_bytes", t.offset).
			Int64("file_size", size).
			Msg("Telemetry log truncated, reading from the beginning")
		t.offset = 0
		chunk.Offset = 0
		chunk.Truncated = true
	}
	t.size = size

	if size == t.offset {
		return chunk, nil
	}

	data, err := t.readRange(t.offset, size)
	if err != nil {
		return chunk, err
	}

	t.offset += int64(len(data))
	chunk.Data = data
	return chunk, nil
}

// Commit persists the current read position
func (t *Tailer) Commit(ctx context.Context) error {
	if t.opts.Cursors == nil {
		return nil
	}

	t.mu.Lock()
	cursor := &offset.LogCursor{
		Path:      t.path,
		Offset:    t.offset,
		Size:      t.size,
		UpdatedAt: time.Now(),
	}
	t.mu.Unlock()

	if err := t.opts.Cursors.Save(ctx, cursor); err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

// readRange reads [from, to) of the file; a file shrinking mid-read yields a short result
func (t *Tailer) readRange(from, to int64) ([]byte, error) {
	file, err := os.Open(t.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(from, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to offset: %w", err)
	}

	data, err := io.ReadAll(io.LimitReader(file, to-from))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}
