package goShield

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/goShield/abuse"
	"github.com/MrEthical07/goShield/csrf"
	"github.com/MrEthical07/goShield/internal/audit"
	"github.com/MrEthical07/goShield/internal/stores"
	"github.com/MrEthical07/goShield/membership"
	"github.com/MrEthical07/goShield/password"
	"github.com/MrEthical07/goShield/permission"
	"github.com/MrEthical07/goShield/ratelimit"
	"github.com/MrEthical07/goShield/tokens"
	"github.com/redis/go-redis/v9"
)

// Engine is the security core. It is safe for concurrent use after Builder.Build.
type Engine struct {
	config        Config
	backend       string
	redis         redis.UniversalClient
	logger        *slog.Logger
	now           func() time.Time
	users         UserStore
	mailer        Mailer
	tokens        *tokens.Manager
	verifications stores.ChallengeStore
	resets        stores.ChallengeStore
	hasher        *password.Argon2
	csrf          *csrf.Guard
	limiter       *ratelimit.Limiter
	detector      *abuse.Detector
	abuseLog      *abuse.Log
	authority     *membership.Authority
	audit         *audit.Dispatcher
	metrics       *Metrics
}

// Close flushes the audit dispatcher. The engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Run drives the periodic sweeps of refresh records, CSRF tokens and rate-limit windows. It
// blocks until ctx is cancelled and every sweeper has returned.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, run := range []func(context.Context){e.tokens.Run, e.csrf.Run, e.limiter.Run, e.sweepAbuseLog} {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(run)
	}
	wg.Wait()
}

func (e *Engine) sweepAbuseLog(ctx context.Context) {
	interval, retention := e.config.Abuse.SweepInterval, e.config.Abuse.LogRetention
	if interval <= 0 || retention <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := e.abuseLog.Sweep(e.now().Add(-retention)); n > 0 {
				e.logger.Debug("goShield: abuse log sweep", "removed", n)
			}
		}
	}
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// AbuseLog exposes the suspicious-activity log for observability.
func (e *Engine) AbuseLog() *abuse.Log {
	return e.abuseLog
}

/*
====================================
CREDENTIALS
====================================
*/

// Login exchanges an email and password for a session.
//
// Unknown emails and wrong passwords both return ErrInvalidCredentials. Status and email
// verification are checked only after the password matched. On success the rate-limit hit
// recorded for this request is given back when its class skips successful attempts.
func (e *Engine) Login(ctx context.Context, email, pw string) (*Session, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, invalid("email", "required")
	}
	if pw == "" {
		return nil, invalid("password", "required")
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, e.loginFailed(ctx, "", ErrInvalidCredentials)
		}
		return nil, err
	}

	ok, err := e.hasher.Verify(pw, user.PasswordHash)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooLong) {
			return nil, e.loginFailed(ctx, user.ID, ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, e.loginFailed(ctx, user.ID, ErrInvalidCredentials)
	}
	if !user.Active() {
		return nil, e.loginFailed(ctx, user.ID, ErrUserInactive)
	}
	if e.config.Verification.RequireForLogin && !user.EmailVerified {
		return nil, e.loginFailed(ctx, user.ID, ErrEmailNotVerified)
	}

	upgrade := false
	if e.config.Password.UpgradeOnLogin {
		upgrade, _ = e.hasher.NeedsUpgrade(user.PasswordHash)
	}
	var newHash string
	if upgrade {
		if newHash, err = e.hasher.Hash(pw); err != nil {
			e.logger.Warn("goShield: password rehash failed", "user_id", user.ID, "error", err)
			newHash = ""
		}
	}

	now := e.now()
	updated, err := e.users.UpdateUser(ctx, user.ID, func(u *User) error {
		u.LastLoginAt = &now
		if newHash != "" {
			u.PasswordHash = newHash
		}
		return nil
	})
	if err != nil {
		e.logger.Warn("goShield: could not record login", "user_id", user.ID, "error", err)
	} else {
		user = updated
	}

	sess, err := e.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	e.settleRate(ctx)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, user.AccountID, nil, nil)
	return sess, nil
}

func (e *Engine) loginFailed(ctx context.Context, userID string, err error) error {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, "", err, nil)
	return err
}

// Refresh redeems a refresh token for a new session. Any failure is terminal for the token.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, ErrRefreshTokenRequired
	}

	var current *User
	pair, err := e.tokens.Refresh(ctx, refreshToken, func(ctx context.Context, userID string) (tokens.Subject, error) {
		u, err := e.users.GetUserByID(ctx, userID)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return tokens.Subject{}, tokens.ErrUnknownRefreshToken
			}
			return tokens.Subject{}, err
		}
		if !u.Active() {
			return tokens.Subject{}, ErrUserInactive
		}
		current = u
		return subjectOf(u), nil
	})
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", err, nil)
		return nil, err
	}

	csrfToken, err := e.IssueCSRF(ctx, current.ID)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, current.ID, current.AccountID, nil, nil)
	return sessionOf(current, pair, csrfToken), nil
}

// Logout revokes refreshToken, or every refresh record of the principal when all is set,
// and clears the principal's CSRF tokens. It returns the number of refresh records removed.
func (e *Engine) Logout(ctx context.Context, p *Principal, refreshToken string, all bool) (int, error) {
	if p == nil || p.User == nil {
		return 0, ErrNotAuthenticated
	}
	userID := p.User.ID

	removed := 0
	switch {
	case all:
		n, err := e.tokens.RevokeAll(ctx, userID)
		if err != nil {
			return 0, err
		}
		removed = n
	case refreshToken != "":
		if err := e.tokens.Revoke(ctx, refreshToken); err != nil {
			return 0, err
		}
		removed = 1
	}

	if _, err := e.csrf.RevokeUser(ctx, userID); err != nil {
		e.logger.Warn("goShield: csrf revoke failed", "user_id", userID, "error", err)
	}

	if all {
		e.metricInc(MetricLogoutAll)
		e.emitAudit(ctx, auditEventLogoutAll, true, userID, p.User.AccountID, nil, func() map[string]string {
			return map[string]string{"revoked": fmt.Sprint(removed)}
		})
	} else {
		e.metricInc(MetricLogout)
		e.emitAudit(ctx, auditEventLogout, true, userID, p.User.AccountID, nil, nil)
	}
	return removed, nil
}

func (e *Engine) issueSession(ctx context.Context, u *User) (*Session, error) {
	pair, err := e.tokens.Issue(ctx, subjectOf(u))
	if err != nil {
		return nil, err
	}
	csrfToken, err := e.IssueCSRF(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return sessionOf(u, pair, csrfToken), nil
}

func subjectOf(u *User) tokens.Subject {
	return tokens.Subject{UserID: u.ID, AccountID: u.AccountID, Role: string(u.Role)}
}

func sessionOf(u *User, pair tokens.Pair, csrfToken string) *Session {
	return &Session{
		User:             u,
		AccessToken:      pair.AccessToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshToken:     pair.RefreshToken,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		CSRFToken:        csrfToken,
	}
}

/*
====================================
REQUEST CHECKS
====================================
*/

// Authenticate validates an access token and loads its user, who must still exist and be
// active. Signature and expiry failures surface as tokens.ErrNoToken, ErrInvalidToken or
// ErrTokenExpired.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}

	claims, err := e.tokens.Authenticate(accessToken)
	if err != nil {
		return nil, err
	}
	user, err := e.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUnknownPrincipal
		}
		return nil, err
	}
	if !user.Active() {
		return nil, ErrUserInactive
	}
	return &Principal{User: user, TokenID: claims.TokenID, ExpiresAt: claims.ExpiresAt}, nil
}

// BearerSubject returns the user id of a well-formed, unexpired access token without
// touching any store. The pipeline uses it to pick the rate-limit identity.
func (e *Engine) BearerSubject(accessToken string) (string, bool) {
	if accessToken == "" {
		return "", false
	}
	claims, err := e.tokens.Authenticate(accessToken)
	if err != nil {
		return "", false
	}
	return claims.UserID, true
}

// CheckRate records a hit for identity under class. A denial is a *ratelimit.ExceededError.
func (e *Engine) CheckRate(ctx context.Context, identity string, class ratelimit.Class) (ratelimit.Decision, error) {
	d, err := e.limiter.Check(ctx, identity, class)
	if err == nil {
		return d, nil
	}

	var exceeded *ratelimit.ExceededError
	if errors.As(err, &exceeded) {
		e.metricInc(MetricRateLimitHit)
		if class == ratelimit.ClassLogin {
			e.metricInc(MetricLoginRateLimited)
		}
		e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", err, func() map[string]string {
			return map[string]string{
				"class":       string(class),
				"retry_after": fmt.Sprint(RetryAfterSeconds(exceeded.RetryAfter)),
			}
		})
		return d, err
	}

	e.logger.Error("goShield: rate limit check failed", "class", string(class), "error", err)
	return d, err
}

// settleRate gives back the hit recorded for this request when its class counts failures only.
func (e *Engine) settleRate(ctx context.Context) {
	d, ok := RateDecisionFrom(ctx)
	if !ok {
		return
	}
	rule, ok := e.limiter.Rule(d.Class)
	if !ok || !rule.SkipSuccessful {
		return
	}
	if err := e.limiter.Release(ctx, d); err != nil {
		e.logger.Warn("goShield: rate limit release failed", "class", string(d.Class), "error", err)
	}
}

// ScanPayload runs the abuse detector over a request. Any match is logged and recorded under
// the caller's identity. In block mode the result is ErrSuspiciousActivity; in log-only mode
// the request proceeds.
func (e *Engine) ScanPayload(ctx context.Context, method string, p abuse.Payload, userID string) error {
	kinds := e.detector.Scan(p)
	if len(kinds) == 0 {
		return nil
	}

	ip := ClientIP(ctx)
	e.abuseLog.Append(abuse.Identity(ip, userID), abuse.Record{
		Timestamp: e.now(),
		Patterns:  kinds,
		Path:      p.Path,
		Method:    method,
	})

	patterns := make([]string, len(kinds))
	for i, k := range kinds {
		patterns[i] = string(k)
	}
	e.logger.Warn("goShield: suspicious activity",
		"ip", ip,
		"user_id", userID,
		"method", method,
		"path", p.Path,
		"patterns", patterns,
		"mode", string(e.detector.Mode()),
	)
	meta := func() map[string]string {
		return map[string]string{"path": p.Path, "method": method, "patterns": fmt.Sprint(patterns)}
	}

	if !e.detector.Blocks() {
		e.metricInc(MetricAbuseFlagged)
		e.emitAudit(ctx, auditEventAbuseFlagged, true, userID, "", nil, meta)
		return nil
	}
	e.metricInc(MetricAbuseBlocked)
	e.emitAudit(ctx, auditEventAbuseBlocked, false, userID, "", ErrSuspiciousActivity, meta)
	return ErrSuspiciousActivity
}

// IssueCSRF mints a single-use anti-forgery token for userID.
func (e *Engine) IssueCSRF(ctx context.Context, userID string) (string, error) {
	token, err := e.csrf.IssueToken(ctx, userID)
	if err != nil {
		return "", err
	}
	e.metricInc(MetricCSRFIssued)
	return token, nil
}

// VerifyCSRF consumes token for userID. It returns csrf.ErrTokenMissing or csrf.ErrTokenInvalid.
func (e *Engine) VerifyCSRF(ctx context.Context, token, userID string) error {
	err := e.csrf.Verify(ctx, token, userID)
	if err != nil && (errors.Is(err, csrf.ErrTokenMissing) || errors.Is(err, csrf.ErrTokenInvalid)) {
		e.metricInc(MetricCSRFRejected)
		e.emitAudit(ctx, auditEventCSRFRejected, false, userID, "", err, nil)
	}
	return err
}

// Authorize checks that the principal may exercise perm in their account and returns it.
func (e *Engine) Authorize(ctx context.Context, p *Principal, perm permission.Name) (*membership.Account, error) {
	if p == nil || p.User == nil {
		return nil, ErrNotAuthenticated
	}
	if p.User.AccountID == "" {
		return nil, ErrAccountRequired
	}

	acct, err := e.authority.Authorize(ctx, p.User.AccountID, p.User.ID, perm)
	if err != nil {
		if errors.Is(err, membership.ErrInsufficientPermissions) || errors.Is(err, membership.ErrAccountInactive) {
			e.metricInc(MetricAuthorizationDenied)
			e.emitAudit(ctx, auditEventAuthorizationDenied, false, p.User.ID, p.User.AccountID, err, func() map[string]string {
				return map[string]string{"permission": string(perm)}
			})
		}
		return acct, err
	}
	return acct, nil
}

// Me returns the caller's profile with effective permission flags.
func (e *Engine) Me(ctx context.Context, p *Principal) (*Profile, error) {
	if p == nil || p.User == nil {
		return nil, ErrNotAuthenticated
	}

	var acct *membership.Account
	if p.User.AccountID != "" {
		a, err := e.authority.Get(ctx, p.User.AccountID)
		if err != nil && !errors.Is(err, membership.ErrAccountNotFound) {
			return nil, err
		}
		acct = a
	}

	flags := make(map[permission.Name]bool, len(permission.All()))
	for _, name := range permission.All() {
		flags[name] = acct != nil && e.authority.ResolvePermission(acct, p.User.ID, name)
	}
	return &Profile{User: p.User, Account: acct, Permissions: flags}, nil
}
