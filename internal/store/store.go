// Package store persists marshalled Taffy values in a sqlite file.
//
// Every value is kept under a bucket and a key together with the class
// it was marshalled from, a random id and a blake2b checksum of the
// bytes. Get verifies the checksum before returning the data.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	_ "modernc.org/sqlite"
)

// Buckets used by the runtime.
const (
	BucketObjects = "objects"
	BucketGlobals = "globals"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

var (
	ErrNotFound = errors.New("store: key not found")
	ErrChecksum = errors.New("store: checksum mismatch")
	ErrClosed   = errors.New("store: closed")
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	bucket     TEXT    NOT NULL,
	key        TEXT    NOT NULL,
	id         TEXT    NOT NULL,
	class      TEXT    NOT NULL,
	data       BLOB    NOT NULL,
	checksum   BLOB    NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (bucket, key)
)`

// Record is one stored value.
type Record struct {
	ID        uuid.UUID
	Bucket    string
	Key       string
	Class     string
	Data      []byte
	UpdatedAt time.Time
}

type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}
	// a :memory: database exists per connection
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating store schema in %s: %w", path, err)
	}
	s := &Store{db: db, path: path, logger: logger.With("store", path)}
	s.logger.Debug("store opened")
	return s, nil
}

func (s *Store) Path() string { return s.path }

func Checksum(data []byte) []byte {
	sum := blake2b.Sum256(data)
	return sum[:]
}

// Put stores data under bucket and key, replacing any previous value,
// and returns the id of the new record.
func (s *Store) Put(ctx context.Context, bucket, key, class string, data []byte) (uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return uuid.Nil, ErrClosed
	}
	id := uuid.New()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entries (bucket, key, id, class, data, checksum, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (bucket, key) DO UPDATE SET
		   id = excluded.id, class = excluded.class, data = excluded.data,
		   checksum = excluded.checksum, updated_at = excluded.updated_at`,
		bucket, key, id.String(), class, data, Checksum(data), time.Now().UnixNano())
	if err != nil {
		return uuid.Nil, fmt.Errorf("storing %s/%s: %w", bucket, key, err)
	}
	s.logger.Debug("stored", "bucket", bucket, "key", key, "class", class, "bytes", len(data))
	return id, nil
}

// Get loads the record under bucket and key. A record whose data does
// not match its checksum fails with ErrChecksum.
func (s *Store) Get(ctx context.Context, bucket, key string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}
	var (
		id    string
		sum   []byte
		nanos int64
		rec   = &Record{Bucket: bucket, Key: key}
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, class, data, checksum, updated_at FROM entries WHERE bucket = ? AND key = ?`,
		bucket, key).Scan(&id, &rec.Class, &rec.Data, &sum, &nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s/%s: %w", bucket, key, err)
	}
	if !bytes.Equal(sum, Checksum(rec.Data)) {
		return nil, fmt.Errorf("%w: %s/%s", ErrChecksum, bucket, key)
	}
	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("loading %s/%s: bad id: %w", bucket, key, err)
	}
	rec.UpdatedAt = time.Unix(0, nanos)
	return rec, nil
}

// Keys returns the keys of bucket in ascending order.
func (s *Store) Keys(ctx context.Context, bucket string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM entries WHERE bucket = ? ORDER BY key`, bucket)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", bucket, err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("listing %s: %w", bucket, err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Delete removes the record under bucket and key and reports whether
// there was one.
func (s *Store) Delete(ctx context.Context, bucket, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return false, ErrClosed
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE bucket = ? AND key = ?`, bucket, key)
	if err != nil {
		return false, fmt.Errorf("deleting %s/%s: %w", bucket, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting %s/%s: %w", bucket, key, err)
	}
	return n > 0, nil
}

// Close closes the database. Later calls fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.logger.Debug("store closed")
	return err
}
