package refresh

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store. A single mutex guards both maps so a Consume and a
// concurrent DeleteAllForUser can never observe a half-removed record.
type MemoryStore struct {
	mu     sync.Mutex
	byHash map[string]Record
	byUser map[string]map[string]struct{}
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byHash: make(map[string]Record),
		byUser: make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStore) Save(_ context.Context, rec Record, now time.Time) error {
	if rec.Expired(now) {
		return ErrExpired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.byHash[rec.Hash] = rec
	set, ok := s.byUser[rec.UserID]
	if !ok {
		set = make(map[string]struct{})
		s.byUser[rec.UserID] = set
	}
	set[rec.Hash] = struct{}{}
	return nil
}

func (s *MemoryStore) Consume(_ context.Context, hash string, now time.Time) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byHash[hash]
	if !ok {
		return Record{}, ErrNotFound
	}
	s.removeLocked(rec)
	if rec.Expired(now) {
		return Record{}, ErrExpired
	}
	return rec, nil
}

func (s *MemoryStore) Delete(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.byHash[hash]; ok {
		s.removeLocked(rec)
	}
	return nil
}

func (s *MemoryStore) DeleteAllForUser(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.byUser[userID]
	for hash := range set {
		delete(s.byHash, hash)
	}
	delete(s.byUser, userID)
	return len(set), nil
}

func (s *MemoryStore) CountForUser(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byUser[userID]), nil
}

func (s *MemoryStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, rec := range s.byHash {
		if rec.Expired(now) {
			s.removeLocked(rec)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) removeLocked(rec Record) {
	delete(s.byHash, rec.Hash)
	if set, ok := s.byUser[rec.UserID]; ok {
		delete(set, rec.Hash)
		if len(set) == 0 {
			delete(s.byUser, rec.UserID)
		}
	}
}
