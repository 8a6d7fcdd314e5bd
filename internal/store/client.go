// Package store wraps the Redis backing store in the narrow capability set
// the rest of the core depends on: GET, GETDEL, SCAN, INCR, EXPIRE, PING.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get and GetDel when the key does not exist.
var ErrNotFound = redis.Nil

// Store is the capability set the classifier/executor/rate-limiter layers
// depend on. *RedisStore satisfies it; tests substitute a fake.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	GetDel(ctx context.Context, key string) (string, error)
	Scan(ctx context.Context, cursor uint64, match string, count int64) (keys []string, nextCursor uint64, err error)
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Eval(ctx context.Context, script string, keys []string, args ...any) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// RedisStore is the production Store backed by a pooled go-redis client.
type RedisStore struct {
	client *redis.Client
}

// New connects to the Redis-shaped backing store at the given redis:// URL.
// The returned store holds a connection pool sized to go-redis's defaults
// (10 * GOMAXPROCS), which is adequate for a server that hands out one
// goroutine per accepted MySQL connection.
func New(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if err != nil {
		return "", err
	}
	return v, nil
}

// GetDel atomically reads and removes key in a single round trip, which is
// what makes single-use token consumption race-free.
func (s *RedisStore) GetDel(ctx context.Context, key string) (string, error) {
	v, err := s.client.GetDel(ctx, key).Result()
	if err != nil {
		return "", err
	}
	return v, nil
}

func (s *RedisStore) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	keys, next, err := s.client.Scan(ctx, cursor, match, count).Result()
	if err != nil {
		return nil, 0, err
	}
	return keys, next, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, key).Result()
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Expire(ctx, key, ttl).Err()
}

// Eval runs a Lua script and returns its result as an integer, which is all
// the one script this adapter runs (the rate-limit window script) needs.
func (s *RedisStore) Eval(ctx context.Context, script string, keys []string, args ...any) (int64, error) {
	v, err := s.client.Eval(ctx, script, keys, args...).Result()
	if err != nil {
		return 0, err
	}
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected eval result type %T", v)
	}
	return n, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
