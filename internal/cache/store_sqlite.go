package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kalambet/sentinel/internal/storage"
)

// SQLiteStore persists entries and counters in the local database.
type SQLiteStore struct {
	db  *storage.Store
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(db *storage.Store) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (Entry, error) {
	row, err := s.db.GetScore(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return Entry{}, ErrMiss
	}
	if err != nil {
		return Entry{}, err
	}
	var e Entry
	if err := json.Unmarshal([]byte(row.RecordJSON), &e.Record); err != nil {
		return Entry{}, fmt.Errorf("decoding cache entry %s: %w", key, err)
	}
	e.ExpiresAt = row.ExpiresAt
	return e, nil
}

func (s *SQLiteStore) SetWithTTL(ctx context.Context, key string, e Entry, ttl time.Duration) error {
	raw, err := json.Marshal(e.Record)
	if err != nil {
		return fmt.Errorf("encoding cache entry %s: %w", key, err)
	}
	now := s.now()
	expires := e.ExpiresAt
	if expires.IsZero() || expires.After(now.Add(ttl)) {
		expires = now.Add(ttl)
	}
	return s.db.PutScore(ctx, storage.ScoreEntry{
		SubjectID:  key,
		RecordJSON: string(raw),
		StoredAt:   now,
		ExpiresAt:  expires,
	})
}

func (s *SQLiteStore) IncrementCounter(ctx context.Context, name string) (int64, error) {
	return s.db.IncrementCounter(ctx, name, 1)
}

func (s *SQLiteStore) Counter(ctx context.Context, name string) (int64, error) {
	return s.db.Counter(ctx, name)
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Sweep deletes expired rows.
func (s *SQLiteStore) Sweep(ctx context.Context) (int64, error) {
	return s.db.DeleteExpiredScores(ctx, s.now())
}
