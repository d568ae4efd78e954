package csrf

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

var (
	// ErrNotFound is returned when no record exists for the hash.
	ErrNotFound = errors.New("csrf record not found")
	// ErrExpired is returned when the record was older than the TTL. It is deleted.
	ErrExpired = errors.New("csrf record expired")
	// ErrOwnerMismatch is returned when the record belongs to another user. It is kept.
	ErrOwnerMismatch = errors.New("csrf record owner mismatch")
	// ErrStoreUnavailable wraps backend failures.
	ErrStoreUnavailable = errors.New("csrf store unavailable")
)

// Record is what the store keeps per issued token.
type Record struct {
	UserID   string    `json:"uid"`
	IssuedAt time.Time `json:"iat"`
}

// Store persists CSRF records keyed by token hash.
type Store interface {
	Put(ctx context.Context, hash string, rec Record, ttl time.Duration) error
	// Consume deletes and returns the record when it exists, is fresh and belongs to userID.
	Consume(ctx context.Context, hash, userID string, now time.Time, ttl time.Duration) error
	// DeleteForUser removes every record of userID.
	DeleteForUser(ctx context.Context, userID string) (int, error)
	// Sweep removes records issued before now-ttl.
	Sweep(ctx context.Context, now time.Time, ttl time.Duration) (int, error)
}

const shardCount = 32

type shard struct {
	mu      sync.Mutex
	records map[string]Record
}

// MemoryStore shards records by hash so unrelated tokens do not share a lock.
type MemoryStore struct {
	shards [shardCount]*shard
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i] = &shard{records: make(map[string]Record)}
	}
	return s
}

func (s *MemoryStore) shardFor(hash string) *shard {
	return s.shards[xxhash.Sum64String(hash)%shardCount]
}

func (s *MemoryStore) Put(_ context.Context, hash string, rec Record, _ time.Duration) error {
	sh := s.shardFor(hash)
	sh.mu.Lock()
	sh.records[hash] = rec
	sh.mu.Unlock()
	return nil
}

func (s *MemoryStore) Consume(_ context.Context, hash, userID string, now time.Time, ttl time.Duration) error {
	sh := s.shardFor(hash)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[hash]
	if !ok {
		return ErrNotFound
	}
	if now.Sub(rec.IssuedAt) > ttl {
		delete(sh.records, hash)
		return ErrExpired
	}
	if rec.UserID != userID {
		return ErrOwnerMismatch
	}
	delete(sh.records, hash)
	return nil
}

func (s *MemoryStore) DeleteForUser(_ context.Context, userID string) (int, error) {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for hash, rec := range sh.records {
			if rec.UserID == userID {
				delete(sh.records, hash)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}

func (s *MemoryStore) Sweep(_ context.Context, now time.Time, ttl time.Duration) (int, error) {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for hash, rec := range sh.records {
			if now.Sub(rec.IssuedAt) > ttl {
				delete(sh.records, hash)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}

// Len reports how many records are held.
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.records)
		sh.mu.Unlock()
	}
	return n
}
