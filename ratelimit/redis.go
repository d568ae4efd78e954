package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KEYS[1] hit log. ARGV: now ms, window ms, limit, mark.
const hitScript = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
local count = redis.call("ZCARD", KEYS[1])
if count < limit then
  redis.call("ZADD", KEYS[1], now, ARGV[4])
  redis.call("PEXPIRE", KEYS[1], window)
  return {1, count + 1, 0}
end
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
local at = 0
if oldest[2] then
  at = tonumber(oldest[2])
end
return {0, count, at}
`

var hitLua = redis.NewScript(hitScript)

// RedisStore keeps each hit log in a sorted set scored by millisecond timestamp. The script
// runs atomically per key; the key expires one window after its latest hit.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore returns a RedisStore using prefix for all keys.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "gs"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) key(key string) string {
	return s.prefix + ":rl:" + key
}

func (s *RedisStore) Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time, mark string) (Result, error) {
	vals, err := hitLua.Run(ctx, s.redis, []string{s.key(key)},
		now.UnixMilli(), window.Milliseconds(), limit, mark,
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(vals) != 3 {
		return Result{}, fmt.Errorf("%w: unexpected script reply", ErrStoreUnavailable)
	}

	res := Result{Allowed: vals[0] == 1, Count: int(vals[1])}
	if !res.Allowed && vals[2] > 0 {
		res.Oldest = time.UnixMilli(vals[2])
	}
	return res, nil
}

func (s *RedisStore) Release(ctx context.Context, key, mark string) error {
	if err := s.redis.ZRem(ctx, s.key(key), mark).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Sweep is a no-op: idle keys expire on their own.
func (s *RedisStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}
