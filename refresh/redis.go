package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const consumeScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return false
end
redis.call("DEL", KEYS[1])
return data
`

var consumeLua = redis.NewScript(consumeScript)

// KEYS[1] user index, ARGV[1] record key prefix.
const deleteAllScript = `
local hashes = redis.call("SMEMBERS", KEYS[1])
local removed = 0
for _, h in ipairs(hashes) do
  removed = removed + redis.call("DEL", ARGV[1] .. h)
end
redis.call("DEL", KEYS[1])
return removed
`

var deleteAllLua = redis.NewScript(deleteAllScript)

// RedisStore keeps records as JSON values with native TTL plus a per-user SET index.
// The index is advisory: members whose record already expired are ignored on read.
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
	return s.recordPrefix() + hash
}

func (s *RedisStore) recordPrefix() string {
	return s.prefix + ":rt:"
}

func (s *RedisStore) userKey(userID string) string {
	return s.prefix + ":rtu:" + userID
}

func (s *RedisStore) Save(ctx context.Context, rec Record, now time.Time) error {
	ttl := rec.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return ErrExpired
	}
	blob, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(rec.Hash), blob, ttl)
		pipe.SAdd(ctx, s.userKey(rec.UserID), rec.Hash)
		pipe.Expire(ctx, s.userKey(rec.UserID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Consume(ctx context.Context, hash string, now time.Time) (Record, error) {
	data, err := consumeLua.Run(ctx, s.redis, []string{s.key(hash)}).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return Record{}, ErrNotFound
	}
	rec.Hash = hash

	if err := s.redis.SRem(ctx, s.userKey(rec.UserID), hash).Err(); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if rec.Expired(now) {
		return Record{}, ErrExpired
	}
	return rec, nil
}

func (s *RedisStore) Delete(ctx context.Context, hash string) error {
	data, err := s.redis.GetDel(ctx, s.key(hash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var rec Record
	if json.Unmarshal(data, &rec) == nil && rec.UserID != "" {
		if err := s.redis.SRem(ctx, s.userKey(rec.UserID), hash).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return nil
}

// DeleteAllForUser reads and clears the index in one script, so a concurrent Save lands either
// before the sweep (and is removed) or after it (under a fresh index).
func (s *RedisStore) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	removed, err := deleteAllLua.Run(ctx, s.redis, []string{s.userKey(userID)}, s.recordPrefix()).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return removed, nil
}

func (s *RedisStore) CountForUser(ctx context.Context, userID string) (int, error) {
	hashes, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(hashes) == 0 {
		return 0, nil
	}

	keys := make([]string, len(hashes))
	for i, hash := range hashes {
		keys[i] = s.key(hash)
	}
	n, err := s.redis.Exists(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(n), nil
}

// PurgeExpired is a no-op: Redis expires record keys on its own.
func (s *RedisStore) PurgeExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}
