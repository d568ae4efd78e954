package refresh

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for a hash, including one already redeemed.
	ErrNotFound = errors.New("refresh record not found")
	// ErrExpired is returned when the record existed but its TTL had elapsed. The record is
	// removed as part of the same call.
	ErrExpired = errors.New("refresh record expired")
	// ErrStoreUnavailable wraps backend failures.
	ErrStoreUnavailable = errors.New("refresh store unavailable")
)

// Record is one outstanding refresh token.
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"uid"`
	Hash      string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the record is past its expiry at now.
func (r Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Store is the persistence contract for refresh records. Every method is atomic per hash.
type Store interface {
	// Save persists rec under rec.Hash. It fails with ErrExpired when rec is already stale at now.
	Save(ctx context.Context, rec Record, now time.Time) error
	// Consume removes the record for hash and returns it. It fails with ErrNotFound when absent
	// and ErrExpired when present but stale. A record is never returned twice.
	Consume(ctx context.Context, hash string, now time.Time) (Record, error)
	// Delete removes one record. Deleting a missing record is not an error.
	Delete(ctx context.Context, hash string) error
	// DeleteAllForUser removes every record owned by userID and returns how many were removed.
	DeleteAllForUser(ctx context.Context, userID string) (int, error)
	// CountForUser reports outstanding records for userID.
	CountForUser(ctx context.Context, userID string) (int, error)
	// PurgeExpired removes records past expiry and returns how many were removed.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}
