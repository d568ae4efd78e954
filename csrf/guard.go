package csrf

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/MrEthical07/goShield/internal"
)

const (
	// HeaderName carries the token on requests and on authenticated responses.
	HeaderName = "X-CSRF-Token"
	// FieldName is the body or query field accepted when the header is absent.
	FieldName = "_csrf"

	DefaultTTL           = time.Hour
	DefaultSweepInterval = 10 * time.Minute
)

var (
	// ErrTokenMissing is returned when no token accompanies a state-changing request.
	ErrTokenMissing = errors.New("csrf token missing")
	// ErrTokenInvalid is returned when the token is unknown, expired or owned by someone else.
	ErrTokenInvalid = errors.New("csrf token invalid")
)

// Config tunes a Guard.
type Config struct {
	TTL           time.Duration
	SweepInterval time.Duration
	Now           func() time.Time
	Logger        *slog.Logger
}

// Guard issues and verifies CSRF tokens.
type Guard struct {
	store  Store
	config Config
}

// NewGuard returns a Guard over store.
func NewGuard(store Store, cfg Config) *Guard {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Guard{store: store, config: cfg}
}

// IssueToken creates a new token owned by userID.
func (g *Guard) IssueToken(ctx context.Context, userID string) (string, error) {
	token, hash, err := internal.NewOpaqueToken()
	if err != nil {
		return "", err
	}
	rec := Record{UserID: userID, IssuedAt: g.config.Now()}
	if err := g.store.Put(ctx, hash, rec, g.config.TTL); err != nil {
		return "", err
	}
	return token, nil
}

// Verify consumes token for userID. Success deletes the record, so a second Verify with the
// same token fails.
func (g *Guard) Verify(ctx context.Context, token, userID string) error {
	if token == "" {
		return ErrTokenMissing
	}
	hash, err := internal.HashOpaqueToken(token)
	if err != nil {
		return ErrTokenInvalid
	}

	err = g.store.Consume(ctx, hash, userID, g.config.Now(), g.config.TTL)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrExpired):
		return ErrTokenInvalid
	case errors.Is(err, ErrOwnerMismatch):
		g.config.Logger.Warn("goShield: csrf token presented by non-owner", "user_id", userID)
		return ErrTokenInvalid
	default:
		return err
	}
}

// Valid is the boolean form of Verify. Store failures count as invalid.
func (g *Guard) Valid(ctx context.Context, token, userID string) bool {
	return g.Verify(ctx, token, userID) == nil
}

// RevokeUser drops all outstanding tokens of userID.
func (g *Guard) RevokeUser(ctx context.Context, userID string) (int, error) {
	return g.store.DeleteForUser(ctx, userID)
}

// Sweep removes tokens older than the TTL.
func (g *Guard) Sweep(ctx context.Context) (int, error) {
	return g.store.Sweep(ctx, g.config.Now(), g.config.TTL)
}

// Run sweeps every SweepInterval until ctx is done.
func (g *Guard) Run(ctx context.Context) {
	ticker := time.NewTicker(g.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := g.Sweep(ctx)
			if err != nil {
				g.config.Logger.Error("goShield: csrf sweep failed", "error", err)
				continue
			}
			if n > 0 {
				g.config.Logger.Debug("goShield: csrf sweep", "removed", n)
			}
		}
	}
}

// Exempt reports whether method is read-only and bypasses the guard.
func Exempt(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

// TokenFromRequest finds the token in the header, then the buffered body, then the query.
func TokenFromRequest(r *http.Request, body []byte) string {
	if tok := r.Header.Get(HeaderName); tok != "" {
		return tok
	}
	if tok := tokenFromBody(r.Header.Get("Content-Type"), body); tok != "" {
		return tok
	}
	return r.URL.Query().Get(FieldName)
}

func tokenFromBody(contentType string, body []byte) string {
	if len(body) == 0 {
		return ""
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "application/json":
		var fields map[string]any
		if json.Unmarshal(body, &fields) != nil {
			return ""
		}
		tok, _ := fields[FieldName].(string)
		return tok
	case "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return ""
		}
		return values.Get(FieldName)
	}
	return ""
}
