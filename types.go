package goShield

import (
	"context"
	"strings"
	"time"

	"github.com/MrEthical07/goShield/membership"
	"github.com/MrEthical07/goShield/permission"
)

// UserStatus is the lifecycle state of a user.
type UserStatus string

const (
	UserActive    UserStatus = "active"
	UserInactive  UserStatus = "inactive"
	UserSuspended UserStatus = "suspended"
)

// User is a person who can log in. Refresh records are kept by the token store, not here.
type User struct {
	ID            string          `json:"id" bson:"_id" db:"id"`
	Name          string          `json:"name" bson:"name" db:"name"`
	Email         string          `json:"email" bson:"email" db:"email"`
	Phone         string          `json:"phone,omitempty" bson:"phone,omitempty" db:"phone"`
	PasswordHash  string          `json:"-" bson:"password_hash" db:"password_hash"`
	AccountID     string          `json:"accountId,omitempty" bson:"account_id,omitempty" db:"account_id"`
	Role          membership.Role `json:"role,omitempty" bson:"role,omitempty" db:"role"`
	Status        UserStatus      `json:"status" bson:"status" db:"status"`
	EmailVerified bool            `json:"emailVerified" bson:"email_verified" db:"email_verified"`
	CreatedAt     time.Time       `json:"createdAt" bson:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updatedAt" bson:"updated_at" db:"updated_at"`
	LastLoginAt   *time.Time      `json:"lastLoginAt,omitempty" bson:"last_login_at,omitempty" db:"last_login_at"`
}

// Active reports whether the user may authenticate.
func (u *User) Active() bool {
	return u != nil && u.Status == UserActive
}

// Clone returns a copy safe to hand out of a store.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		out.LastLoginAt = &t
	}
	return &out
}

// NormalizeEmail trims and lower-cases an address. Stores index users by this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserStore persists users. Implementations live in this package (memory) and under store/.
//
// Lookups return ErrUserNotFound on a miss. CreateUser returns ErrUserExists when the
// normalized email is taken. UpdateUser applies mutate atomically; a mutate error aborts the
// write and is returned unchanged. Backend failures wrap ErrStoreUnavailable.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, id string, mutate func(*User) error) (*User, error)
	DeleteUser(ctx context.Context, id string) error
}

// Mailer delivers account emails. Tokens are the raw secrets the recipient must present.
type Mailer interface {
	SendVerification(ctx context.Context, to, name, token string) error
	SendPasswordReset(ctx context.Context, to, name, token string) error
}

// RegisterInput is the payload of a self-service registration.
type RegisterInput struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Phone       string `json:"phone,omitempty"`
	AccountName string `json:"accountName,omitempty"`
}

// MemberInput creates a user directly inside the actor's account.
type MemberInput struct {
	Name     string          `json:"name"`
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Role     membership.Role `json:"role"`
	// Permissions may switch role defaults off. Entries granting beyond the role are ignored.
	Permissions map[permission.Name]bool `json:"permissions,omitempty"`
}

// Principal is the authenticated caller of a request.
type Principal struct {
	User      *User
	TokenID   string
	ExpiresAt time.Time
}

// UserID is a nil-safe accessor.
func (p *Principal) UserID() string {
	if p == nil || p.User == nil {
		return ""
	}
	return p.User.ID
}

// Session is what login, registration and refresh hand back to a client.
type Session struct {
	User             *User     `json:"user"`
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
	CSRFToken        string    `json:"csrfToken,omitempty"`
}

// Profile is the `me` view: the user plus their effective permission flags.
type Profile struct {
	User        *User                    `json:"user"`
	Account     *membership.Account      `json:"account,omitempty"`
	Permissions map[permission.Name]bool `json:"permissions"`
}
