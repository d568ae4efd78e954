package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Purpose separates the keyspaces of different link types.
type Purpose string

const (
	PurposeVerifyEmail   Purpose = "verify"
	PurposePasswordReset Purpose = "reset"
)

const challengeRecordVersionV1 = 1

var (
	// ErrChallengeNotFound is returned for unknown or already consumed records.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrChallengeExpired is returned for a record past its expiry. The record is removed.
	ErrChallengeExpired = errors.New("challenge expired")
	// ErrChallengeUnavailable wraps backend failures.
	ErrChallengeUnavailable = errors.New("challenge store unavailable")
)

// Challenge is a pending link.
type Challenge struct {
	UserID    string
	ExpiresAt time.Time
}

// ChallengeStore persists challenges by purpose and secret hash.
type ChallengeStore interface {
	Save(ctx context.Context, purpose Purpose, hash string, c Challenge) error
	Consume(ctx context.Context, purpose Purpose, hash string, now time.Time) (Challenge, error)
	// DeleteForUser drops every pending challenge of purpose for userID.
	DeleteForUser(ctx context.Context, purpose Purpose, userID string) error
}

type memoryKey struct {
	purpose Purpose
	hash    string
}

// MemoryChallengeStore is a process-local ChallengeStore. Expired records are removed when
// touched.
type MemoryChallengeStore struct {
	mu      sync.Mutex
	records map[memoryKey]Challenge
}

// NewMemoryChallengeStore returns an empty store.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{records: make(map[memoryKey]Challenge)}
}

func (s *MemoryChallengeStore) Save(_ context.Context, purpose Purpose, hash string, c Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[memoryKey{purpose, hash}] = c
	return nil
}

func (s *MemoryChallengeStore) Consume(_ context.Context, purpose Purpose, hash string, now time.Time) (Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memoryKey{purpose, hash}
	c, ok := s.records[k]
	if !ok {
		return Challenge{}, ErrChallengeNotFound
	}
	delete(s.records, k)
	if !now.Before(c.ExpiresAt) {
		return Challenge{}, ErrChallengeExpired
	}
	return c, nil
}

func (s *MemoryChallengeStore) DeleteForUser(_ context.Context, purpose Purpose, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, c := range s.records {
		if k.purpose == purpose && c.UserID == userID {
			delete(s.records, k)
		}
	}
	return nil
}

// Len reports the number of stored records, expired ones included.
func (s *MemoryChallengeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// RedisChallengeStore keeps challenges as binary values with a TTL plus a per-user SET index
// so older links can be revoked when a new one is issued.
type RedisChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisChallengeStore returns a store under prefix.
func NewRedisChallengeStore(client redis.UniversalClient, prefix string) *RedisChallengeStore {
	if prefix == "" {
		prefix = "gs"
	}
	return &RedisChallengeStore{redis: client, prefix: prefix}
}

func (s *RedisChallengeStore) key(purpose Purpose, hash string) string {
	return s.prefix + ":ch:" + string(purpose) + ":" + hash
}

func (s *RedisChallengeStore) userKey(purpose Purpose, userID string) string {
	return s.prefix + ":chu:" + string(purpose) + ":" + userID
}

func (s *RedisChallengeStore) Save(ctx context.Context, purpose Purpose, hash string, c Challenge) error {
	encoded, err := encodeChallenge(c)
	if err != nil {
		return err
	}
	ttl := time.Until(c.ExpiresAt)
	if ttl <= 0 {
		return ErrChallengeExpired
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(purpose, hash), encoded, ttl)
		pipe.SAdd(ctx, s.userKey(purpose, c.UserID), hash)
		pipe.Expire(ctx, s.userKey(purpose, c.UserID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}
	return nil
}

func (s *RedisChallengeStore) Consume(ctx context.Context, purpose Purpose, hash string, now time.Time) (Challenge, error) {
	data, err := s.redis.GetDel(ctx, s.key(purpose, hash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Challenge{}, ErrChallengeNotFound
		}
		return Challenge{}, fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}

	c, err := decodeChallenge(data)
	if err != nil {
		return Challenge{}, ErrChallengeNotFound
	}
	// Index cleanup is best-effort; the SET expires with its newest member.
	_ = s.redis.SRem(ctx, s.userKey(purpose, c.UserID), hash).Err()

	if !now.Before(c.ExpiresAt) {
		return Challenge{}, ErrChallengeExpired
	}
	return c, nil
}

func (s *RedisChallengeStore) DeleteForUser(ctx context.Context, purpose Purpose, userID string) error {
	userKey := s.userKey(purpose, userID)
	hashes, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}
	keys := make([]string, 0, len(hashes)+1)
	for _, h := range hashes {
		keys = append(keys, s.key(purpose, h))
	}
	keys = append(keys, userKey)
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}
	return nil
}

func encodeChallenge(c Challenge) ([]byte, error) {
	if len(c.UserID) > 65535 {
		return nil, errors.New("challenge user id too long")
	}

	var buf bytes.Buffer
	buf.WriteByte(challengeRecordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, c.ExpiresAt.UnixMilli()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(c.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(c.UserID)
	return buf.Bytes(), nil
}

func decodeChallenge(data []byte) (Challenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return Challenge{}, err
	}
	if version != challengeRecordVersionV1 {
		return Challenge{}, errors.New("invalid challenge record version")
	}

	var expiresAt int64
	if err := binary.Read(reader, binary.BigEndian, &expiresAt); err != nil {
		return Challenge{}, err
	}
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return Challenge{}, err
	}
	userID := make([]byte, n)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return Challenge{}, err
	}
	return Challenge{UserID: string(userID), ExpiresAt: time.UnixMilli(expiresAt)}, nil
}
