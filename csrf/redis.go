package csrf

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	consumeStatusNotFound int64 = 0
	consumeStatusExpired  int64 = 1
	consumeStatusMismatch int64 = 2
	consumeStatusConsumed int64 = 3
)

// KEYS[1] record, KEYS[2] owner index. ARGV: user id, now ms, ttl ms, hash.
const consumeScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
local sep = string.find(data, "|", 1, true)
if not sep then
  redis.call("DEL", KEYS[1])
  return 0
end
local uid = string.sub(data, 1, sep - 1)
local iat = tonumber(string.sub(data, sep + 1))
if not iat or tonumber(ARGV[2]) - iat > tonumber(ARGV[3]) then
  redis.call("DEL", KEYS[1])
  return 1
end
if uid ~= ARGV[1] then
  return 2
end
redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[4])
return 3
`

var consumeLua = redis.NewScript(consumeScript)

// RedisStore keeps CSRF records as "uid|issuedAtMillis" strings with native TTL.
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

func (s *RedisStore) key(hash string) string {
	return s.prefix + ":csrf:" + hash
}

func (s *RedisStore) userKey(userID string) string {
	return s.prefix + ":csrfu:" + userID
}

func (s *RedisStore) Put(ctx context.Context, hash string, rec Record, ttl time.Duration) error {
	value := rec.UserID + "|" + strconv.FormatInt(rec.IssuedAt.UnixMilli(), 10)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(hash), value, ttl)
		pipe.SAdd(ctx, s.userKey(rec.UserID), hash)
		pipe.Expire(ctx, s.userKey(rec.UserID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Consume(ctx context.Context, hash, userID string, now time.Time, ttl time.Duration) error {
	status, err := consumeLua.Run(ctx, s.redis,
		[]string{s.key(hash), s.userKey(userID)},
		userID, now.UnixMilli(), ttl.Milliseconds(), hash,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	switch status {
	case consumeStatusConsumed:
		return nil
	case consumeStatusExpired:
		return ErrExpired
	case consumeStatusMismatch:
		return ErrOwnerMismatch
	default:
		return ErrNotFound
	}
}

func (s *RedisStore) DeleteForUser(ctx context.Context, userID string) (int, error) {
	hashes, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	dels := make([]*redis.IntCmd, 0, len(hashes))
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, hash := range hashes {
			dels = append(dels, pipe.Del(ctx, s.key(hash)))
		}
		pipe.Del(ctx, s.userKey(userID))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	removed := 0
	for _, cmd := range dels {
		removed += int(cmd.Val())
	}
	return removed, nil
}

// Sweep only tidies owner indexes: record keys expire natively.
func (s *RedisStore) Sweep(ctx context.Context, _ time.Time, _ time.Duration) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	pattern := s.prefix + ":csrfu:*"
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		for _, userKey := range keys {
			hashes, err := s.redis.SMembers(ctx, userKey).Result()
			if err != nil {
				return removed, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
			for _, hash := range hashes {
				n, err := s.redis.Exists(ctx, s.key(hash)).Result()
				if err != nil {
					return removed, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
				}
				if n == 0 {
					s.redis.SRem(ctx, userKey, hash)
					removed++
				}
			}
		}
		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}
