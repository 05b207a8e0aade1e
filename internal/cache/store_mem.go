package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/puzpuzpuz/xsync/v3"
)

// MemStore keeps entries in a bounded expiring LRU. Contents do not survive
// a restart.
type MemStore struct {
	Data     *expirable.LRU[string, Entry]
	counters *xsync.MapOf[string, *xsync.Counter]
}

var _ Store = (*MemStore)(nil)

func NewMemStore(capacity int, ttl time.Duration) *MemStore {
	return &MemStore{
		Data:     expirable.NewLRU[string, Entry](capacity, nil, ttl),
		counters: xsync.NewMapOf[string, *xsync.Counter](),
	}
}

func (s *MemStore) Get(ctx context.Context, key string) (Entry, error) {
	e, ok := s.Data.Get(key)
	if !ok {
		return Entry{}, ErrMiss
	}
	return e, nil
}

// SetWithTTL stores e. The LRU applies its own TTL; the entry's ExpiresAt
// bounds serving when ttl is shorter.
func (s *MemStore) SetWithTTL(ctx context.Context, key string, e Entry, ttl time.Duration) error {
	s.Data.Add(key, e)
	return nil
}

func (s *MemStore) counter(name string) *xsync.Counter {
	c, _ := s.counters.LoadOrCompute(name, func() *xsync.Counter {
		return xsync.NewCounter()
	})
	return c
}

func (s *MemStore) IncrementCounter(ctx context.Context, name string) (int64, error) {
	c := s.counter(name)
	c.Inc()
	return c.Value(), nil
}

func (s *MemStore) Counter(ctx context.Context, name string) (int64, error) {
	c, ok := s.counters.Load(name)
	if !ok {
		return 0, nil
	}
	return c.Value(), nil
}

func (s *MemStore) Ping(ctx context.Context) error {
	return nil
}
