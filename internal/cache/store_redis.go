package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	rediscache "github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

var redisCountPrefix = "count/"

// RedisStore keeps entries in Redis with a small TinyLFU layer in front.
type RedisStore struct {
	Client *redis.Client
	Data   *rediscache.Cache
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to redisURL and checks the connection.
func NewRedisStore(ctx context.Context, redisURL string, localSize int, localTTL time.Duration) (*RedisStore, error) {
	s, err := DialRedisStore(redisURL, localSize, localTTL)
	if err != nil {
		return nil, err
	}
	// check redis connection
	if _, err := s.Client.Ping(ctx).Result(); err != nil {
		s.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return s, nil
}

// DialRedisStore builds a store without contacting Redis. Connection
// failures surface on first use.
func DialRedisStore(redisURL string, localSize int, localTTL time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return newRedisStore(redis.NewClient(opt), localSize, localTTL), nil
}

func newRedisStore(rdb *redis.Client, localSize int, localTTL time.Duration) *RedisStore {
	opts := &rediscache.Options{Redis: rdb}
	if localSize > 0 {
		opts.LocalCache = rediscache.NewTinyLFU(localSize, localTTL)
	}
	return &RedisStore{
		Client: rdb,
		Data:   rediscache.New(opts),
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) (Entry, error) {
	var raw []byte
	err := s.Data.Get(ctx, key, &raw)
	if errors.Is(err, rediscache.ErrCacheMiss) {
		return Entry{}, ErrMiss
	}
	if err != nil {
		return Entry{}, err
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, fmt.Errorf("decoding cache entry %s: %w", key, err)
	}
	return e, nil
}

func (s *RedisStore) SetWithTTL(ctx context.Context, key string, e Entry, ttl time.Duration) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding cache entry %s: %w", key, err)
	}
	return s.Data.Set(&rediscache.Item{
		Ctx:   ctx,
		Key:   key,
		Value: raw,
		TTL:   ttl,
	})
}

func (s *RedisStore) IncrementCounter(ctx context.Context, name string) (int64, error) {
	return s.Client.Incr(ctx, redisCountPrefix+name).Result()
}

func (s *RedisStore) Counter(ctx context.Context, name string) (int64, error) {
	c, err := s.Client.Get(ctx, redisCountPrefix+name).Int64()
	if err == redis.Nil {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return c, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.Client.Close()
}
