// Package cache stores score records behind a TTL and guarantees at most
// one concurrent computation per subject.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/kalambet/sentinel/internal/scoring"
)

var (
	// ErrMiss is returned by a Store when the key has no entry.
	ErrMiss = errors.New("cache miss")

	// ErrUnavailable wraps store failures surfaced by health checks.
	ErrUnavailable = errors.New("cache store unavailable")
)

// Counter names shared by all stores.
const (
	CounterAnalyzed = "total_analyzed"
	CounterHits     = "cache_hits"
	CounterMisses   = "cache_misses"
)

// Entry is a cached record with its expiry. An entry is never served at or
// after ExpiresAt.
type Entry struct {
	Record    scoring.Record `json:"record"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// Expired reports whether the entry must not be served at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Store is a key/value backend for entries plus named counters.
type Store interface {
	// Get returns ErrMiss when key has no entry.
	Get(ctx context.Context, key string) (Entry, error)
	SetWithTTL(ctx context.Context, key string, e Entry, ttl time.Duration) error
	IncrementCounter(ctx context.Context, name string) (int64, error)
	Counter(ctx context.Context, name string) (int64, error)
	Ping(ctx context.Context) error
}

func scoreKey(subjectID string) string {
	return "score/" + subjectID
}
