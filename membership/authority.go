package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goShield/permission"
	"github.com/google/uuid"
)

// DeniedError carries the diagnostics of an authorization refusal.
type DeniedError struct {
	Permission permission.Name
	Role       Role
}

func (e *DeniedError) Error() string {
	role := string(e.Role)
	if role == "" {
		role = "none"
	}
	return fmt.Sprintf("permission %q denied for role %s", e.Permission, role)
}

func (e *DeniedError) Is(target error) bool {
	return target == ErrInsufficientPermissions
}

// Option configures an Authority.
type Option func(*Authority)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Authority) {
		a.now = now
	}
}

// WithTrialPeriod overrides the trial length of new accounts.
func WithTrialPeriod(d time.Duration) Option {
	return func(a *Authority) {
		a.trial = d
	}
}

// Authority is the single entry point for membership mutations and permission checks.
type Authority struct {
	store Store
	now   func() time.Time
	trial time.Duration
}

// NewAuthority returns an Authority over store.
func NewAuthority(store Store, opts ...Option) *Authority {
	a := &Authority{store: store, now: time.Now, trial: TrialPeriod}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CreateAccount opens a trial account with ownerID as its first member.
func (a *Authority) CreateAccount(ctx context.Context, name, ownerID string, plan Plan) (*Account, error) {
	if ownerID == "" {
		return nil, errors.New("membership: owner id required")
	}
	if plan == "" {
		plan = PlanBasic
	}
	now := a.now()
	acct := &Account{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		Capacity:  Capacity,
		Plan:      plan,
		Status:    StatusTrial,
		ExpiresAt: now.Add(a.trial),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := acct.add(Member{UserID: ownerID, Role: RoleOwner, AddedAt: now, AddedBy: ownerID}); err != nil {
		return nil, err
	}
	if err := a.store.Create(ctx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

// Get loads an account.
func (a *Authority) Get(ctx context.Context, accountID string) (*Account, error) {
	return a.store.Get(ctx, accountID)
}

// AddMember appends userID with role. The capacity and role checks run inside the store's
// atomic update.
func (a *Authority) AddMember(ctx context.Context, accountID, userID string, role Role, addedBy string) (*Account, error) {
	if userID == "" {
		return nil, errors.New("membership: user id required")
	}
	now := a.now()
	return a.store.Update(ctx, accountID, func(acct *Account) error {
		if err := acct.add(Member{UserID: userID, Role: role, AddedAt: now, AddedBy: addedBy}); err != nil {
			return err
		}
		acct.UpdatedAt = now
		return nil
	})
}

// RemoveMember drops userID. The owner can never be removed.
func (a *Authority) RemoveMember(ctx context.Context, accountID, userID string) (*Account, error) {
	now := a.now()
	return a.store.Update(ctx, accountID, func(acct *Account) error {
		if err := acct.remove(userID); err != nil {
			return err
		}
		acct.UpdatedAt = now
		return nil
	})
}

// SetOverrides replaces the permission overrides of a non-owner member.
func (a *Authority) SetOverrides(ctx context.Context, accountID, userID string, overrides map[permission.Name]bool) (*Account, error) {
	for name := range overrides {
		if _, err := permission.Parse(string(name)); err != nil {
			return nil, fmt.Errorf("%w: %s", err, name)
		}
	}
	now := a.now()
	return a.store.Update(ctx, accountID, func(acct *Account) error {
		for i := range acct.Members {
			if acct.Members[i].UserID != userID {
				continue
			}
			if acct.Members[i].Role == RoleOwner {
				return ErrOwnershipRequired
			}
			acct.Members[i].Overrides = overrides
			acct.UpdatedAt = now
			return nil
		}
		return ErrMemberNotFound
	})
}

// ResolvePermission reports whether userID may exercise perm within acct.
func (a *Authority) ResolvePermission(acct *Account, userID string, perm permission.Name) bool {
	return ResolvePermission(acct, userID, perm)
}

// IsActive reports whether acct is active, or a trial that has not yet expired.
func (a *Authority) IsActive(acct *Account) bool {
	return acct != nil && acct.IsActive(a.now())
}

// CanManage checks that actorID may add or remove a member holding target. Owners manage
// everyone; admins manage auxiliaries only.
func (a *Authority) CanManage(acct *Account, actorID string, target Role) error {
	actor, ok := acct.Member(actorID)
	if !ok {
		return ErrInsufficientPermissions
	}
	switch actor.Role {
	case RoleOwner:
		return nil
	case RoleAdmin:
		if target == RoleAuxiliary {
			return nil
		}
		return ErrOwnershipRequired
	}
	return ErrInsufficientPermissions
}

// Authorize loads the account and checks that userID may exercise perm in it.
//
// Authorize returns ErrAccountInactive for suspended or lapsed accounts and *DeniedError,
// which matches ErrInsufficientPermissions, when the member lacks perm.
func (a *Authority) Authorize(ctx context.Context, accountID, userID string, perm permission.Name) (*Account, error) {
	acct, err := a.store.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, &DeniedError{Permission: perm}
		}
		return nil, err
	}
	if !a.IsActive(acct) {
		return acct, ErrAccountInactive
	}
	if !ResolvePermission(acct, userID, perm) {
		m, _ := acct.Member(userID)
		return acct, &DeniedError{Permission: perm, Role: m.Role}
	}
	return acct, nil
}
