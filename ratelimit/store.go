package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Result is what a Store reports for one hit attempt.
type Result struct {
	Allowed bool
	// Count is the number of hits in the window after this attempt.
	Count int
	// Oldest is the earliest hit still in the window. Only set on denial.
	Oldest time.Time
}

// Store holds the hit logs. Hit must prune, compare and append as one step per key.
type Store interface {
	Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time, mark string) (Result, error)
	// Release removes the hit identified by mark. Unknown marks are ignored.
	Release(ctx context.Context, key, mark string) error
	// Sweep drops keys with no hit inside their window.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

type hit struct {
	at   time.Time
	mark string
}

type window struct {
	mu     sync.Mutex
	hits   []hit
	length time.Duration
	dead   bool
}

func (w *window) pruneLocked(now time.Time) {
	cut := 0
	for cut < len(w.hits) && now.Sub(w.hits[cut].at) >= w.length {
		cut++
	}
	if cut > 0 {
		w.hits = append(w.hits[:0], w.hits[cut:]...)
	}
}

// MemoryStore keeps one log per key, each behind its own mutex. The map lock is only held to
// find or insert a key.
type MemoryStore struct {
	mu      sync.RWMutex
	windows map[string]*window
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*window)}
}

func (s *MemoryStore) lookup(key string, length time.Duration) *window {
	s.mu.RLock()
	w, ok := s.windows[key]
	s.mu.RUnlock()
	if ok {
		return w
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok = s.windows[key]; ok {
		return w
	}
	w = &window{length: length}
	s.windows[key] = w
	return w
}

func (s *MemoryStore) Hit(_ context.Context, key string, limit int, length time.Duration, now time.Time, mark string) (Result, error) {
	for {
		w := s.lookup(key, length)
		w.mu.Lock()
		if w.dead {
			// swept between lookup and lock
			w.mu.Unlock()
			continue
		}

		w.length = length
		w.pruneLocked(now)
		if len(w.hits) < limit {
			w.hits = append(w.hits, hit{at: now, mark: mark})
			res := Result{Allowed: true, Count: len(w.hits)}
			w.mu.Unlock()
			return res, nil
		}

		res := Result{Count: len(w.hits)}
		if len(w.hits) > 0 {
			res.Oldest = w.hits[0].at
		}
		w.mu.Unlock()
		return res, nil
	}
}

func (s *MemoryStore) Release(_ context.Context, key, mark string) error {
	s.mu.RLock()
	w, ok := s.windows[key]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for i, h := range w.hits {
		if h.mark == mark {
			w.hits = append(w.hits[:i], w.hits[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, w := range s.windows {
		w.mu.Lock()
		w.pruneLocked(now)
		if len(w.hits) == 0 {
			w.dead = true
			delete(s.windows, key)
			removed++
		}
		w.mu.Unlock()
	}
	return removed, nil
}

// Keys reports how many keys are tracked.
func (s *MemoryStore) Keys() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.windows)
}
