package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements the fixed window over Redis with INCR and PEXPIRE,
// for deployments that want limits to survive restarts. Semantics match
// MemoryStore: the window starts at the first counted request and denied
// requests never increment.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore creates a Redis-backed fixed-window store.
func NewRedisStore(client *redis.Client, now func() time.Time) *RedisStore {
	if now == nil {
		now = time.Now
	}
	return &RedisStore{client: client, now: now}
}

// Check applies the fixed-window rules for key against Redis.
func (s *RedisStore) Check(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	// Pipeline the read side to save a round trip.
	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Result{}, fmt.Errorf("rate limit read for key %q: %w", key, err)
	}

	count, err := getCmd.Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Result{}, fmt.Errorf("rate limit count for key %q: %w", key, err)
	}

	ttl, _ := ttlCmd.Result()
	if ttl > 0 && count >= limit {
		return Result{Allowed: false, Remaining: 0, ResetAt: s.now().Add(ttl)}, nil
	}

	count64, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit increment for key %q: %w", key, err)
	}

	if count64 == 1 || ttl <= 0 {
		// First request in the window owns the expiry.
		if err := s.client.PExpire(ctx, key, window).Err(); err != nil {
			return Result{}, fmt.Errorf("rate limit expiry for key %q: %w", key, err)
		}
		ttl = window
	}

	resetAt := s.now().Add(ttl)
	remaining := limit - int(count64)
	if remaining < 0 {
		remaining = 0
	}

	if int(count64) > limit {
		return Result{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}

	return Result{Allowed: true, Remaining: remaining, ResetAt: resetAt}, nil
}

// Start is a no-op: Redis evicts expired keys itself.
func (s *RedisStore) Start() error { return nil }

// Stop closes the underlying client.
func (s *RedisStore) Stop() error { return s.client.Close() }
