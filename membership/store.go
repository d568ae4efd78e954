package membership

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrAccountNotFound is returned when no account has the requested id.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is returned when creating an account whose id is taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrConflict is returned by optimistic stores that ran out of retries.
	ErrConflict = errors.New("account update conflict")
	// ErrStoreUnavailable wraps backend failures.
	ErrStoreUnavailable = errors.New("account store unavailable")
)

// Store persists accounts.
//
// Update must run mutate against the current state and persist the result as one atomic
// step: two concurrent Updates of the same account never both see the pre-image. When mutate
// returns an error nothing is written and that error is returned unchanged.
type Store interface {
	Create(ctx context.Context, a *Account) error
	Get(ctx context.Context, id string) (*Account, error)
	Update(ctx context.Context, id string, mutate func(*Account) error) (*Account, error)
}

type accountSlot struct {
	mu      sync.Mutex
	account *Account
}

// MemoryStore serializes updates per account; different accounts never share a lock.
type MemoryStore struct {
	mu    sync.RWMutex
	slots map[string]*accountSlot
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[string]*accountSlot)}
}

func (s *MemoryStore) slot(id string) (*accountSlot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.slots[id]
	return sl, ok
}

func (s *MemoryStore) Create(_ context.Context, a *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.slots[a.ID]; exists {
		return ErrAccountExists
	}
	s.slots[a.ID] = &accountSlot{account: a.Clone()}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Account, error) {
	sl, ok := s.slot(id)
	if !ok {
		return nil, ErrAccountNotFound
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.account.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, mutate func(*Account) error) (*Account, error) {
	sl, ok := s.slot(id)
	if !ok {
		return nil, ErrAccountNotFound
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	next := sl.account.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.Version++
	sl.account = next
	return next.Clone(), nil
}
