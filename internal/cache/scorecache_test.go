package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/sentinel/internal/scoring"
)

type fakeComputer struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (f *fakeComputer) Analyze(ctx context.Context, subjectID string) (scoring.Record, error) {
	n := f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return scoring.Record{}, ctx.Err()
		}
	}
	if f.err != nil {
		return scoring.Record{}, f.err
	}
	return scoring.Record{
		SubjectID:      subjectID,
		BotProbability: 0.1 * float64(n),
		Confidence:     0.9,
		Classification: scoring.ProbablyHuman,
		SampleCount:    40,
		ModelVersion:   scoring.ModelVersion,
		ComputedAt:     time.Date(2026, 3, 1, 0, 0, int(n), 0, time.UTC),
	}, nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// brokenStore fails every operation until healed.
type brokenStore struct {
	*MemStore
	broken atomic.Bool
}

var errStoreDown = errors.New("connection refused")

func (s *brokenStore) Get(ctx context.Context, key string) (Entry, error) {
	if s.broken.Load() {
		return Entry{}, errStoreDown
	}
	return s.MemStore.Get(ctx, key)
}

func (s *brokenStore) SetWithTTL(ctx context.Context, key string, e Entry, ttl time.Duration) error {
	if s.broken.Load() {
		return errStoreDown
	}
	return s.MemStore.SetWithTTL(ctx, key, e, ttl)
}

func (s *brokenStore) IncrementCounter(ctx context.Context, name string) (int64, error) {
	if s.broken.Load() {
		return 0, errStoreDown
	}
	return s.MemStore.IncrementCounter(ctx, name)
}

func (s *brokenStore) Counter(ctx context.Context, name string) (int64, error) {
	if s.broken.Load() {
		return 0, errStoreDown
	}
	return s.MemStore.Counter(ctx, name)
}

func (s *brokenStore) Ping(ctx context.Context) error {
	if s.broken.Load() {
		return errStoreDown
	}
	return nil
}

func newTestCache(store Store, comp Computer, clock *fakeClock) *ScoreCache {
	opts := Options{TTL: time.Hour, ComputeTimeout: 5 * time.Second}
	if clock != nil {
		opts.Now = clock.Now
	}
	return NewScoreCache(store, comp, opts)
}

func TestGetOrCompute_RoundTrip(t *testing.T) {
	ctx := context.Background()
	comp := &fakeComputer{}
	c := newTestCache(NewMemStore(100, time.Hour), comp, nil)

	first, err := c.GetOrCompute(ctx, "SomeUser", false)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, "someuser", first.Record.SubjectID)

	second, err := c.GetOrCompute(ctx, "someuser", false)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Record, second.Record)
	assert.Equal(t, first.ExpiresAt, second.ExpiresAt)
	assert.EqualValues(t, 1, comp.calls.Load())

	stats := c.Stats(ctx)
	assert.EqualValues(t, 1, stats.TotalAnalyzed)
	assert.EqualValues(t, 1, stats.CacheHits)
	assert.EqualValues(t, 1, stats.CacheMisses)
	assert.Equal(t, 0.5, stats.HitRate())
}

func TestGetOrCompute_ConcurrentSingleComputation(t *testing.T) {
	ctx := context.Background()
	comp := &fakeComputer{delay: 50 * time.Millisecond}
	c := newTestCache(NewMemStore(100, time.Hour), comp, nil)

	const callers = 20
	var wg sync.WaitGroup
	results := make([]Result, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrCompute(ctx, "spez", false)
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, comp.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Record, results[i].Record)
	}
}

func TestGetOrCompute_ForceRefresh(t *testing.T) {
	ctx := context.Background()
	comp := &fakeComputer{}
	c := newTestCache(NewMemStore(100, time.Hour), comp, nil)

	first, err := c.GetOrCompute(ctx, "spez", false)
	require.NoError(t, err)

	forced, err := c.GetOrCompute(ctx, "spez", true)
	require.NoError(t, err)
	assert.False(t, forced.Cached)
	assert.NotEqual(t, first.Record.BotProbability, forced.Record.BotProbability)
	assert.EqualValues(t, 2, comp.calls.Load())

	after, err := c.GetOrCompute(ctx, "spez", false)
	require.NoError(t, err)
	assert.True(t, after.Cached)
	assert.Equal(t, forced.Record, after.Record)
}

func TestGetOrCompute_ForceRefreshNotStarvedByCacheReads(t *testing.T) {
	comp := &fakeComputer{}
	c := newTestCache(NewMemStore(100, time.Hour), comp, nil)

	// Keep a stream of non-forced flights on the shared key that only
	// return cached results.
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			c.group.Do("spez", func() (interface{}, error) {
				time.Sleep(2 * time.Millisecond)
				return Result{Cached: true}, nil
			})
		}
	}()
	defer func() {
		close(stop)
		<-done
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := c.GetOrCompute(ctx, "spez", true)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.EqualValues(t, 1, comp.calls.Load())
}

func TestGetOrCompute_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	comp := &fakeComputer{}
	c := newTestCache(NewMemStore(100, 24*time.Hour), comp, clock)

	first, err := c.GetOrCompute(ctx, "spez", false)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(time.Hour), first.ExpiresAt)

	clock.Advance(59 * time.Minute)
	res, err := c.GetOrCompute(ctx, "spez", false)
	require.NoError(t, err)
	assert.True(t, res.Cached)

	clock.Advance(time.Minute)
	res, err = c.GetOrCompute(ctx, "spez", false)
	require.NoError(t, err)
	assert.False(t, res.Cached, "entry served at its expiry time")
	assert.EqualValues(t, 2, comp.calls.Load())
}

func TestGetOrCompute_ErrorNotCached(t *testing.T) {
	ctx := context.Background()
	comp := &fakeComputer{err: errors.New("provider timeout")}
	store := NewMemStore(100, time.Hour)
	c := newTestCache(store, comp, nil)

	_, err := c.GetOrCompute(ctx, "spez", false)
	require.Error(t, err)

	_, err = store.Get(ctx, scoreKey("spez"))
	assert.ErrorIs(t, err, ErrMiss)
	assert.Zero(t, c.Stats(ctx).TotalAnalyzed)
}

func TestGetOrCompute_CallerCancellation(t *testing.T) {
	comp := &fakeComputer{delay: 200 * time.Millisecond}
	store := NewMemStore(100, time.Hour)
	c := newTestCache(store, comp, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.GetOrCompute(ctx, "spez", false)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the detached computation still completes and populates the cache
	assert.Eventually(t, func() bool {
		_, err := store.Get(context.Background(), scoreKey("spez"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGetOrCompute_DegradedStore(t *testing.T) {
	ctx := context.Background()
	store := &brokenStore{MemStore: NewMemStore(100, time.Hour)}
	store.broken.Store(true)
	comp := &fakeComputer{}
	c := newTestCache(store, comp, nil)

	res, err := c.GetOrCompute(ctx, "spez", false)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, Degraded, c.Availability())
	assert.Error(t, c.Ping(ctx))
	assert.ErrorIs(t, c.Ping(ctx), ErrUnavailable)

	// degraded mode always recomputes
	_, err = c.GetOrCompute(ctx, "spez", false)
	require.NoError(t, err)
	assert.EqualValues(t, 2, comp.calls.Load())
	assert.EqualValues(t, 2, c.Stats(ctx).TotalAnalyzed)

	store.broken.Store(false)
	_, err = c.GetOrCompute(ctx, "spez", false)
	require.NoError(t, err)
	assert.Equal(t, Connected, c.Availability())
	assert.EqualValues(t, 3, comp.calls.Load())

	res, err = c.GetOrCompute(ctx, "spez", false)
	require.NoError(t, err)
	assert.True(t, res.Cached)
}

func TestGetOrCompute_EmptySubject(t *testing.T) {
	c := newTestCache(NewMemStore(10, time.Hour), &fakeComputer{}, nil)
	_, err := c.GetOrCompute(context.Background(), "  ", false)
	assert.Error(t, err)
}

func TestEntryExpired(t *testing.T) {
	now := time.Now()
	assert.False(t, Entry{ExpiresAt: now.Add(time.Second)}.Expired(now))
	assert.True(t, Entry{ExpiresAt: now}.Expired(now))
	assert.True(t, Entry{}.Expired(now))
}
