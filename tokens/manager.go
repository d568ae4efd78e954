package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/goShield/internal"
	"github.com/MrEthical07/goShield/jwt"
	"github.com/MrEthical07/goShield/refresh"
	"github.com/oklog/ulid/v2"
)

// DefaultRefreshTTL is the lifetime of a refresh record.
const DefaultRefreshTTL = 7 * 24 * time.Hour

var (
	// ErrNoToken is returned when an empty access token is presented.
	ErrNoToken = errors.New("no access token")
	// ErrInvalidToken is returned for a malformed or badly signed access token.
	ErrInvalidToken = errors.New("invalid access token")
	// ErrTokenExpired is returned for a correctly signed access token past its expiry.
	ErrTokenExpired = errors.New("access token expired")
	// ErrUnknownRefreshToken is returned when the refresh token was never issued, is
	// malformed, or was already redeemed.
	ErrUnknownRefreshToken = errors.New("unknown refresh token")
	// ErrRefreshExpired is returned when the refresh record existed but had expired.
	ErrRefreshExpired = errors.New("refresh token expired")
)

// Subject identifies who a pair is issued to.
type Subject = jwt.Subject

// Claims is what Authenticate yields for a valid access token.
type Claims struct {
	UserID    string
	AccountID string
	Role      string
	TokenID   string
	ExpiresAt time.Time
}

// Pair is an access token plus its rotating refresh token.
type Pair struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// SubjectLookup reloads the current subject for a user during refresh so role or account
// changes flow into the next access token.
type SubjectLookup func(ctx context.Context, userID string) (Subject, error)

// Config tunes a Manager.
type Config struct {
	RefreshTTL    time.Duration
	SweepInterval time.Duration
	Now           func() time.Time
	Logger        *slog.Logger
}

// Manager issues, authenticates, rotates and revokes credentials.
type Manager struct {
	access *jwt.Manager
	store  refresh.Store
	config Config
}

// NewManager returns a Manager over access and store.
func NewManager(access *jwt.Manager, store refresh.Store, cfg Config) (*Manager, error) {
	if access == nil || store == nil {
		return nil, errors.New("tokens: access manager and refresh store are required")
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.RefreshTTL < 0 {
		return nil, errors.New("tokens: invalid refresh TTL")
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 10 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{access: access, store: store, config: cfg}, nil
}

// Issue signs an access token and persists exactly one new refresh record for sub.
func (m *Manager) Issue(ctx context.Context, sub Subject) (Pair, error) {
	access, accessExp, err := m.access.CreateAccess(sub)
	if err != nil {
		return Pair{}, err
	}

	token, hash, err := internal.NewOpaqueToken()
	if err != nil {
		return Pair{}, err
	}

	now := m.config.Now()
	rec := refresh.Record{
		ID:        ulid.Make().String(),
		UserID:    sub.UserID,
		Hash:      hash,
		CreatedAt: now,
		ExpiresAt: now.Add(m.config.RefreshTTL),
	}
	if err := m.store.Save(ctx, rec, now); err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     token,
		RefreshExpiresAt: rec.ExpiresAt,
	}, nil
}

// Authenticate verifies signature and expiry only. It does not touch any store.
func (m *Manager) Authenticate(accessToken string) (Claims, error) {
	if accessToken == "" {
		return Claims{}, ErrNoToken
	}

	claims, err := m.access.ParseAccess(accessToken)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrInvalidToken
	}

	out := Claims{
		UserID:    claims.UID,
		AccountID: claims.AID,
		Role:      claims.Role,
		TokenID:   claims.ID,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// Refresh redeems refreshToken and issues a brand-new pair.
//
// The old record is validated and deleted in one store step, so of any number of concurrent
// calls with the same token at most one succeeds. A failure is terminal: callers should clear
// client credentials rather than retry.
func (m *Manager) Refresh(ctx context.Context, refreshToken string, lookup SubjectLookup) (Pair, error) {
	hash, err := internal.HashOpaqueToken(refreshToken)
	if err != nil {
		return Pair{}, ErrUnknownRefreshToken
	}

	rec, err := m.store.Consume(ctx, hash, m.config.Now())
	switch {
	case errors.Is(err, refresh.ErrNotFound):
		m.config.Logger.Warn("goShield: refresh token not recognised")
		return Pair{}, ErrUnknownRefreshToken
	case errors.Is(err, refresh.ErrExpired):
		return Pair{}, ErrRefreshExpired
	case err != nil:
		return Pair{}, err
	}

	sub := Subject{UserID: rec.UserID}
	if lookup != nil {
		sub, err = lookup(ctx, rec.UserID)
		if err != nil {
			return Pair{}, fmt.Errorf("tokens: reload subject: %w", err)
		}
	}
	return m.Issue(ctx, sub)
}

// Revoke deletes the record behind refreshToken. Unknown tokens are ignored.
func (m *Manager) Revoke(ctx context.Context, refreshToken string) error {
	hash, err := internal.HashOpaqueToken(refreshToken)
	if err != nil {
		return nil
	}
	return m.store.Delete(ctx, hash)
}

// RevokeAll deletes every refresh record of userID.
func (m *Manager) RevokeAll(ctx context.Context, userID string) (int, error) {
	return m.store.DeleteAllForUser(ctx, userID)
}

// Outstanding reports how many refresh records userID currently holds.
func (m *Manager) Outstanding(ctx context.Context, userID string) (int, error) {
	return m.store.CountForUser(ctx, userID)
}

// Purge removes expired refresh records.
func (m *Manager) Purge(ctx context.Context) (int, error) {
	return m.store.PurgeExpired(ctx, m.config.Now())
}

// Run purges expired records every SweepInterval until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Purge(ctx)
			if err != nil {
				m.config.Logger.Error("goShield: refresh sweep failed", "error", err)
				continue
			}
			if n > 0 {
				m.config.Logger.Debug("goShield: refresh sweep", "removed", n)
			}
		}
	}
}
