package goShield

import (
	"context"
	"sync"
)

// MemoryUserStore is a process-local UserStore.
type MemoryUserStore struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string
}

// NewMemoryUserStore returns an empty store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryUserStore) CreateUser(_ context.Context, u *User) error {
	email := NormalizeEmail(u.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[email]; taken {
		return ErrUserExists
	}
	if _, taken := s.byID[u.ID]; taken {
		return ErrUserExists
	}
	stored := u.Clone()
	stored.Email = email
	s.byID[u.ID] = stored
	s.byEmail[email] = u.ID
	return nil
}

func (s *MemoryUserStore) GetUserByID(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u.Clone(), nil
}

func (s *MemoryUserStore) GetUserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *MemoryUserStore) UpdateUser(_ context.Context, id string, mutate func(*User) error) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = id
	next.Email = NormalizeEmail(next.Email)
	if next.Email != current.Email {
		if owner, taken := s.byEmail[next.Email]; taken && owner != id {
			return nil, ErrUserExists
		}
		delete(s.byEmail, current.Email)
		s.byEmail[next.Email] = id
	}
	s.byID[id] = next
	return next.Clone(), nil
}

func (s *MemoryUserStore) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return nil
	}
	delete(s.byEmail, u.Email)
	delete(s.byID, id)
	return nil
}
