package membership

import (
	"errors"
	"time"

	"github.com/MrEthical07/goShield/permission"
)

// Role is a member's position in an account.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "admin"
	RoleAuxiliary Role = "auxiliary"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleAuxiliary:
		return true
	}
	return false
}

// Status is the billing state of an account.
type Status string

const (
	StatusTrial     Status = "trial"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusInactive  Status = "inactive"
)

// Plan is the subscription tier.
type Plan string

const (
	PlanBasic      Plan = "basic"
	PlanPremium    Plan = "premium"
	PlanEnterprise Plan = "enterprise"
)

const (
	Capacity       = 3
	MaxAuxiliaries = 2
	TrialPeriod    = 30 * 24 * time.Hour
)

var (
	ErrCapacityExceeded        = errors.New("account is at capacity")
	ErrRoleConflict            = errors.New("role already taken in account")
	ErrAlreadyMember           = errors.New("user is already a member")
	ErrMemberNotFound          = errors.New("member not found")
	ErrCannotRemoveOwner       = errors.New("the account owner cannot be removed")
	ErrOwnershipRequired       = errors.New("account ownership required")
	ErrInsufficientPermissions = errors.New("insufficient permissions")
	ErrAccountInactive         = errors.New("account inactive")
	ErrInvalidRole             = errors.New("invalid role")
)

// Member is one entry of an account's membership list.
type Member struct {
	UserID  string    `json:"userId" bson:"user_id"`
	Role    Role      `json:"role" bson:"role"`
	AddedAt time.Time `json:"addedAt" bson:"added_at"`
	AddedBy string    `json:"addedBy,omitempty" bson:"added_by,omitempty"`
	// Overrides can switch role defaults off. A true value never grants beyond the role.
	Overrides map[permission.Name]bool `json:"overrides,omitempty" bson:"overrides,omitempty"`
}

// Account is the membership aggregate.
type Account struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	OwnerID   string    `json:"ownerId" bson:"owner_id"`
	Members   []Member  `json:"members" bson:"members"`
	Capacity  int       `json:"capacity" bson:"capacity"`
	Plan      Plan      `json:"plan" bson:"plan"`
	Status    Status    `json:"status" bson:"status"`
	ExpiresAt time.Time `json:"expiresAt" bson:"expires_at"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
	Version   int64     `json:"-" bson:"version"`
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.Members = make([]Member, len(a.Members))
	for i, m := range a.Members {
		out.Members[i] = m
		if m.Overrides != nil {
			out.Members[i].Overrides = make(map[permission.Name]bool, len(m.Overrides))
			for k, v := range m.Overrides {
				out.Members[i].Overrides[k] = v
			}
		}
	}
	return &out
}

// Member finds userID in the account.
func (a *Account) Member(userID string) (Member, bool) {
	for _, m := range a.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return Member{}, false
}

// CountRole counts members holding role.
func (a *Account) CountRole(role Role) int {
	n := 0
	for _, m := range a.Members {
		if m.Role == role {
			n++
		}
	}
	return n
}

func (a *Account) capacity() int {
	if a.Capacity <= 0 || a.Capacity > Capacity {
		return Capacity
	}
	return a.Capacity
}

// IsActive reports whether the account is usable at now.
func (a *Account) IsActive(now time.Time) bool {
	switch a.Status {
	case StatusActive:
		return true
	case StatusTrial:
		return now.Before(a.ExpiresAt)
	}
	return false
}

func (a *Account) add(m Member) error {
	if !m.Role.Valid() {
		return ErrInvalidRole
	}
	if _, exists := a.Member(m.UserID); exists {
		return ErrAlreadyMember
	}
	if len(a.Members) >= a.capacity() {
		return ErrCapacityExceeded
	}
	switch m.Role {
	case RoleOwner, RoleAdmin:
		if a.CountRole(m.Role) >= 1 {
			return ErrRoleConflict
		}
	case RoleAuxiliary:
		if a.CountRole(RoleAuxiliary) >= MaxAuxiliaries {
			return ErrRoleConflict
		}
	}

	a.Members = append(a.Members, m)
	if m.Role == RoleOwner {
		a.OwnerID = m.UserID
	}
	return nil
}

func (a *Account) remove(userID string) error {
	for i, m := range a.Members {
		if m.UserID != userID {
			continue
		}
		if m.Role == RoleOwner {
			return ErrCannotRemoveOwner
		}
		a.Members = append(a.Members[:i], a.Members[i+1:]...)
		return nil
	}
	return ErrMemberNotFound
}
