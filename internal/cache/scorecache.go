package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"

	"github.com/kalambet/sentinel/internal/scoring"
)

const (
	DefaultTTL            = 48 * time.Hour
	DefaultComputeTimeout = 60 * time.Second
)

// forcedFlightSuffix marks singleflight keys used only by forced refreshes.
const forcedFlightSuffix = "#force"

// Availability is the observed state of the backing store.
type Availability int32

const (
	Connected Availability = iota
	Degraded
)

func (a Availability) String() string {
	if a == Degraded {
		return "degraded"
	}
	return "connected"
}

// Computer produces a fresh record for a subject.
type Computer interface {
	Analyze(ctx context.Context, subjectID string) (scoring.Record, error)
}

// Result is what GetOrCompute hands back to callers.
type Result struct {
	Record    scoring.Record
	Cached    bool
	ExpiresAt time.Time
}

// Stats are the persisted analysis counters.
type Stats struct {
	TotalAnalyzed int64
	CacheHits     int64
	CacheMisses   int64
}

// HitRate is hits over lookups, 0 before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

type Options struct {
	TTL time.Duration
	// ComputeTimeout bounds one computation, independent of any caller.
	ComputeTimeout time.Duration
	Logger         *slog.Logger
	Now            func() time.Time
}

// ScoreCache serves records from a Store and computes missing ones with at
// most one in-flight computation per subject.
type ScoreCache struct {
	store    Store
	computer Computer
	ttl      time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time

	group singleflight.Group
	state atomic.Int32

	// local mirrors the store counters so stats survive a degraded store.
	analyzed *xsync.Counter
	hits     *xsync.Counter
	misses   *xsync.Counter
}

func NewScoreCache(store Store, computer Computer, opts Options) *ScoreCache {
	c := &ScoreCache{
		store:    store,
		computer: computer,
		ttl:      opts.TTL,
		timeout:  opts.ComputeTimeout,
		logger:   opts.Logger,
		now:      opts.Now,
		analyzed: xsync.NewCounter(),
		hits:     xsync.NewCounter(),
		misses:   xsync.NewCounter(),
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.timeout <= 0 {
		c.timeout = DefaultComputeTimeout
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// NormalizeSubject is the cache key form of a subject id.
func NormalizeSubject(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// TTL returns the configured entry lifetime.
func (c *ScoreCache) TTL() time.Duration { return c.ttl }

func (c *ScoreCache) Availability() Availability {
	return Availability(c.state.Load())
}

// GetOrCompute returns a fresh cached record or computes one. With
// forceRefresh the cache is never read and the new record overwrites it.
func (c *ScoreCache) GetOrCompute(ctx context.Context, subjectID string, forceRefresh bool) (Result, error) {
	id := NormalizeSubject(subjectID)
	if id == "" {
		return Result{}, fmt.Errorf("empty subject id")
	}

	if !forceRefresh {
		if res, ok := c.lookup(ctx, id); ok {
			c.countLookup(ctx, true)
			return res, nil
		}
	}

	key := id
	for attempt := 1; ; attempt++ {
		res, shared, err := c.flight(ctx, key, id, forceRefresh)
		if err != nil {
			return Result{}, err
		}
		// A forced caller that joined a flight which only read the cache
		// retries once on the shared key, then moves to a key that only
		// forced callers join. Those flights never read the cache.
		if forceRefresh && res.Cached {
			if attempt >= 2 {
				key = id + forcedFlightSuffix
			}
			continue
		}
		if shared {
			scoreRequestsCoalesced.Inc()
		}
		c.countLookup(ctx, res.Cached)
		return res, nil
	}
}

func (c *ScoreCache) flight(ctx context.Context, key, id string, force bool) (Result, bool, error) {
	ch := c.group.DoChan(key, func() (interface{}, error) {
		// The computation outlives the caller that started it so that
		// other waiters still get a result.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		if !force {
			if res, ok := c.lookup(fctx, id); ok {
				return res, nil
			}
		}
		return c.compute(fctx, id)
	})

	select {
	case <-ctx.Done():
		return Result{}, false, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Shared, r.Err
		}
		return r.Val.(Result), r.Shared, nil
	}
}

func (c *ScoreCache) compute(ctx context.Context, id string) (Result, error) {
	start := time.Now()
	rec, err := c.computer.Analyze(ctx, id)
	if err != nil {
		scoreComputeDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return Result{}, err
	}
	scoreComputeDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	now := c.now()
	if rec.ComputedAt.IsZero() {
		rec.ComputedAt = now.UTC()
	}
	entry := Entry{Record: rec, ExpiresAt: now.Add(c.ttl)}

	c.analyzed.Inc()
	if c.Availability() == Connected {
		if err := c.store.SetWithTTL(ctx, scoreKey(id), entry, c.ttl); err != nil {
			c.markDegraded("set", err)
		} else if _, err := c.store.IncrementCounter(ctx, CounterAnalyzed); err != nil {
			c.markDegraded("increment", err)
		}
	}

	return Result{Record: rec, Cached: false, ExpiresAt: entry.ExpiresAt}, nil
}

// lookup reads the store. Any completed read, hit or miss, marks the store
// connected again.
func (c *ScoreCache) lookup(ctx context.Context, id string) (Result, bool) {
	e, err := c.store.Get(ctx, scoreKey(id))
	switch {
	case errors.Is(err, ErrMiss):
		c.markConnected()
		return Result{}, false
	case err != nil:
		c.markDegraded("get", err)
		return Result{}, false
	}
	c.markConnected()

	if e.Expired(c.now()) {
		return Result{}, false
	}
	return Result{Record: e.Record, Cached: true, ExpiresAt: e.ExpiresAt}, true
}

func (c *ScoreCache) countLookup(ctx context.Context, hit bool) {
	name := CounterMisses
	if hit {
		scoreCacheHits.Inc()
		c.hits.Inc()
		name = CounterHits
	} else {
		scoreCacheMisses.Inc()
		c.misses.Inc()
	}
	if c.Availability() != Connected {
		return
	}
	if _, err := c.store.IncrementCounter(ctx, name); err != nil {
		c.markDegraded("increment", err)
	}
}

// Stats reads the store counters, falling back to this process's counts
// while the store is degraded.
func (c *ScoreCache) Stats(ctx context.Context) Stats {
	local := Stats{
		TotalAnalyzed: c.analyzed.Value(),
		CacheHits:     c.hits.Value(),
		CacheMisses:   c.misses.Value(),
	}
	if c.Availability() != Connected {
		return local
	}

	var s Stats
	for _, f := range []struct {
		name string
		dst  *int64
	}{
		{CounterAnalyzed, &s.TotalAnalyzed},
		{CounterHits, &s.CacheHits},
		{CounterMisses, &s.CacheMisses},
	} {
		v, err := c.store.Counter(ctx, f.name)
		if err != nil {
			c.markDegraded("counter", err)
			return local
		}
		*f.dst = v
	}
	return s
}

// Ping checks the store and updates the availability state.
func (c *ScoreCache) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		c.markDegraded("ping", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.markConnected()
	return nil
}

func (c *ScoreCache) markDegraded(op string, err error) {
	cacheStoreErrors.Inc()
	if c.state.Swap(int32(Degraded)) != int32(Degraded) {
		cacheDegraded.Set(1)
		c.logger.Warn("cache store unavailable, serving uncached", "op", op, "error", err)
	}
}

func (c *ScoreCache) markConnected() {
	if c.state.Swap(int32(Connected)) != int32(Connected) {
		cacheDegraded.Set(0)
		c.logger.Info("cache store reconnected")
	}
}
