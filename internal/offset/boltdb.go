package offset

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

const (
	bucketName = "log_cursors"
	keyPrefix  = "tmlog"

	// offset, size, updated_at (unix nanos)
	cursorValueLen = 24
)

// BoltDBStore implements CursorStore using BoltDB
type BoltDBStore struct {
	db *bbolt.DB
}

// NewBoltDBStore creates a new BoltDB cursor store
func NewBoltDBStore(dbPath string) (*BoltDBStore, error) {
	// Short timeout: a lock held by a stale process must not hang startup
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb (file may be locked by another process): %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	log.Info().
		Str("db_path", dbPath).
		Msg("BoltDB cursor store initialized")

	return &BoltDBStore{db: db}, nil
}

// Get retrieves the cursor for a given file
func (s *BoltDBStore) Get(ctx context.Context, path string) (*LogCursor, error) {
	var cursor *LogCursor

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		val := b.Get([]byte(makeKey(path)))
		if val == nil {
			return nil
		}

		if len(val) < cursorValueLen {
			return fmt.Errorf("invalid cursor value")
		}

		cursor = &LogCursor{
			Path:      path,
			Offset:    int64(binary.BigEndian.Uint64(val[0:8])),
			Size:      int64(binary.BigEndian.Uint64(val[8:16])),
			UpdatedAt: time.Unix(0, int64(binary.BigEndian.Uint64(val[16:24]))),
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}

	return cursor, nil
}

// Save stores the cursor for a given file
func (s *BoltDBStore) Save(ctx context.Context, cursor *LogCursor) error {
	if cursor == nil || cursor.Path == "" {
		return fmt.Errorf("cursor path is required")
	}

	updatedAt := cursor.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		val := make([]byte, cursorValueLen)
		binary.BigEndian.PutUint64(val[0:8], uint64(cursor.Offset))
		binary.BigEndian.PutUint64(val[8:16], uint64(cursor.Size))
		binary.BigEndian.PutUint64(val[16:24], uint64(updatedAt.UnixNano()))

		return b.Put([]byte(makeKey(cursor.Path)), val)
	})

	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}

	log.Debug().
		Str("file_path", cursor.Path).
		Int64("offset", cursor.Offset).
		Int64("size", cursor.Size).
		Msg("Cursor updated")

	return nil
}

// Delete removes the cursor for a given file
func (s *BoltDBStore) Delete(ctx context.Context, path string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Delete([]byte(makeKey(path)))
	})

	if err != nil {
		return fmt.Errorf("failed to delete cursor: %w", err)
	}

	return nil
}

// Close closes the BoltDB database
func (s *BoltDBStore) Close() error {
	log.Info().Msg("Closing BoltDB cursor store")
	return s.db.Close()
}

func makeKey(path string) string {
	return fmt.Sprintf("%s:%s", keyPrefix, path)
}
