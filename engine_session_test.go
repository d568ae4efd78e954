package goShield

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goShield/abuse"
	"github.com/MrEthical07/goShield/csrf"
	"github.com/MrEthical07/goShield/ratelimit"
	"github.com/MrEthical07/goShield/tokens"
)

func TestLoginSuccessIssuesSession(t *testing.T) {
	env := newTestEnv(t, nil)
	registerUser(t, env.engine, "alice@example.com")

	sess, err := env.engine.Login(context.Background(), "  Alice@Example.com ", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if sess.AccessToken == "" || sess.RefreshToken == "" || sess.CSRFToken == "" {
		t.Fatalf("expected a complete session, got %+v", sess)
	}
	if sess.User.LastLoginAt == nil || !sess.User.LastLoginAt.Equal(env.clock.Now()) {
		t.Fatalf("expected LastLoginAt to be recorded, got %v", sess.User.LastLoginAt)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricLoginSuccess]; got != 1 {
		t.Fatalf("expected MetricLoginSuccess=1, got %d", got)
	}
}

func TestLoginInvalidCredentialsAreIndistinguishable(t *testing.T) {
	engine, _ := newTestEngine(t)
	registerUser(t, engine, "alice@example.com")

	_, unknown := engine.Login(context.Background(), "nobody@example.com", testPassword)
	_, wrong := engine.Login(context.Background(), "alice@example.com", "Wr0ng!Pass")

	if !errors.Is(unknown, ErrInvalidCredentials) || !errors.Is(wrong, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v and %v", unknown, wrong)
	}
	if ProblemFor(unknown).Message != ProblemFor(wrong).Message {
		t.Fatal("unknown user and wrong password must render identically")
	}
	if got := engine.MetricsSnapshot().Counters[MetricLoginFailure]; got != 2 {
		t.Fatalf("expected MetricLoginFailure=2, got %d", got)
	}
}

func TestLoginRequiresFields(t *testing.T) {
	engine, _ := newTestEngine(t)

	if _, err := engine.Login(context.Background(), "", testPassword); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty email, got %v", err)
	}
	if _, err := engine.Login(context.Background(), "alice@example.com", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty password, got %v", err)
	}
}

func TestLoginInactiveUserRejectedAfterPasswordCheck(t *testing.T) {
	env := newTestEnv(t, nil)
	sess := registerUser(t, env.engine, "alice@example.com")

	if _, err := env.users.UpdateUser(context.Background(), sess.User.ID, func(u *User) error {
		u.Status = UserSuspended
		return nil
	}); err != nil {
		t.Fatalf("suspend failed: %v", err)
	}

	if _, err := env.engine.Login(context.Background(), "alice@example.com", "Wr0ng!Pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected wrong password to win over status, got %v", err)
	}
	if _, err := env.engine.Login(context.Background(), "alice@example.com", testPassword); !errors.Is(err, ErrUserInactive) {
		t.Fatalf("expected ErrUserInactive, got %v", err)
	}
}

func TestLoginRequiresVerifiedEmailWhenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Verification.RequireForLogin = true
	env := newTestEnv(t, func(b *Builder) { b.WithConfig(cfg) })
	registerUser(t, env.engine, "alice@example.com")

	if _, err := env.engine.Login(context.Background(), "alice@example.com", testPassword); !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("expected ErrEmailNotVerified, got %v", err)
	}

	token := env.mailer.last(t, "verify", "alice@example.com")
	if err := env.engine.VerifyEmail(context.Background(), token); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if _, err := env.engine.Login(context.Background(), "alice@example.com", testPassword); err != nil {
		t.Fatalf("expected login after verification, got %v", err)
	}
}

func TestLoginRateLimitCountsFailuresOnly(t *testing.T) {
	engine, _ := newTestEngine(t)
	registerUser(t, engine, "alice@example.com")
	base := WithClientIP(context.Background(), "203.0.113.7")

	for i := 0; i < 10; i++ {
		d, err := engine.CheckRate(base, "203.0.113.7", ratelimit.ClassLogin)
		if err != nil {
			t.Fatalf("successful login %d was throttled: %v", i, err)
		}
		if _, err := engine.Login(WithRateDecision(base, d), "alice@example.com", testPassword); err != nil {
			t.Fatalf("login %d failed: %v", i, err)
		}
	}

	for i := 0; i < 5; i++ {
		d, err := engine.CheckRate(base, "203.0.113.7", ratelimit.ClassLogin)
		if err != nil {
			t.Fatalf("failed attempt %d throttled early: %v", i, err)
		}
		if _, err := engine.Login(WithRateDecision(base, d), "alice@example.com", "Wr0ng!Pass"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected invalid credentials, got %v", err)
		}
	}

	_, err := engine.CheckRate(base, "203.0.113.7", ratelimit.ClassLogin)
	var exceeded *ratelimit.ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected *ratelimit.ExceededError, got %v", err)
	}
	problem := ProblemFor(err)
	if problem.Status != http.StatusTooManyRequests || problem.Code != "TOO_MANY_LOGIN_ATTEMPTS" {
		t.Fatalf("unexpected problem %+v", problem)
	}
	if retry, _ := problem.Extra["retryAfter"].(int); retry < 1 {
		t.Fatalf("expected positive retryAfter, got %v", problem.Extra["retryAfter"])
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricRateLimitHit] != 1 || snap.Counters[MetricLoginRateLimited] != 1 {
		t.Fatalf("unexpected rate metrics %+v", snap.Counters)
	}
}

func TestCheckRateUnknownClass(t *testing.T) {
	engine, _ := newTestEngine(t)
	if _, err := engine.CheckRate(context.Background(), "1.2.3.4", ratelimit.Class("nope")); !errors.Is(err, ratelimit.ErrUnknownClass) {
		t.Fatalf("expected ErrUnknownClass, got %v", err)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	engine, _ := newTestEngine(t)
	sess := registerUser(t, engine, "alice@example.com")

	next, err := engine.Refresh(context.Background(), sess.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if next.RefreshToken == sess.RefreshToken || next.AccessToken == "" || next.CSRFToken == "" {
		t.Fatalf("expected a rotated session, got %+v", next)
	}

	if _, err := engine.Refresh(context.Background(), sess.RefreshToken); !errors.Is(err, tokens.ErrUnknownRefreshToken) {
		t.Fatalf("expected replay to fail with ErrUnknownRefreshToken, got %v", err)
	}
	if _, err := engine.Refresh(context.Background(), ""); !errors.Is(err, ErrRefreshTokenRequired) {
		t.Fatalf("expected ErrRefreshTokenRequired, got %v", err)
	}
}

func TestRefreshRejectsInactiveUser(t *testing.T) {
	env := newTestEnv(t, nil)
	sess := registerUser(t, env.engine, "alice@example.com")

	if _, err := env.users.UpdateUser(context.Background(), sess.User.ID, func(u *User) error {
		u.Status = UserInactive
		return nil
	}); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}

	if _, err := env.engine.Refresh(context.Background(), sess.RefreshToken); !errors.Is(err, ErrUserInactive) {
		t.Fatalf("expected ErrUserInactive, got %v", err)
	}
	if n, _ := env.engine.OutstandingRefreshTokens(context.Background(), sess.User.ID); n != 0 {
		t.Fatalf("expected the presented token to be consumed, %d left", n)
	}
}

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	engine, _ := newTestEngine(t)
	sess := registerUser(t, engine, "alice@example.com")

	const workers = 16
	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		success atomic.Int32
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			if _, err := engine.Refresh(context.Background(), sess.RefreshToken); err == nil {
				success.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := success.Load(); got != 1 {
		t.Fatalf("expected exactly one successful refresh, got %d", got)
	}
}

func TestLogoutSingleAndAll(t *testing.T) {
	engine, _ := newTestEngine(t)
	first := registerUser(t, engine, "alice@example.com")
	second, err := engine.Login(context.Background(), "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	third, err := engine.Login(context.Background(), "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	p := principalOf(t, engine, first)

	removed, err := engine.Logout(context.Background(), p, first.RefreshToken, false)
	if err != nil || removed != 1 {
		t.Fatalf("expected one record removed, got %d, %v", removed, err)
	}
	if _, err := engine.Refresh(context.Background(), first.RefreshToken); err == nil {
		t.Fatal("expected logged out token to be rejected")
	}
	if err := engine.VerifyCSRF(context.Background(), second.CSRFToken, p.UserID()); !errors.Is(err, csrf.ErrTokenInvalid) {
		t.Fatalf("expected csrf tokens cleared on logout, got %v", err)
	}

	removed, err = engine.Logout(context.Background(), p, "", true)
	if err != nil || removed != 2 {
		t.Fatalf("expected two records removed, got %d, %v", removed, err)
	}
	if _, err := engine.Refresh(context.Background(), third.RefreshToken); err == nil {
		t.Fatal("expected every refresh token revoked")
	}

	if _, err := engine.Logout(context.Background(), nil, "", false); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestAuthenticateFailures(t *testing.T) {
	env := newTestEnv(t, nil)
	sess := registerUser(t, env.engine, "alice@example.com")
	other := registerUser(t, env.engine, "bob@example.com")

	if _, err := env.engine.Authenticate(context.Background(), ""); !errors.Is(err, tokens.ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
	if _, err := env.engine.Authenticate(context.Background(), "not.a.jwt"); !errors.Is(err, tokens.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	if err := env.users.DeleteUser(context.Background(), other.User.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := env.engine.Authenticate(context.Background(), other.AccessToken); !errors.Is(err, ErrUnknownPrincipal) {
		t.Fatalf("expected ErrUnknownPrincipal, got %v", err)
	}

	env.clock.Advance(MinAccessTTL + time.Second)
	if _, err := env.engine.Authenticate(context.Background(), sess.AccessToken); !errors.Is(err, tokens.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if ProblemFor(tokens.ErrTokenExpired).Code != CodeTokenExpired {
		t.Fatal("expected TOKEN_EXPIRED code")
	}
}

func TestBearerSubject(t *testing.T) {
	engine, _ := newTestEngine(t)
	sess := registerUser(t, engine, "alice@example.com")

	uid, ok := engine.BearerSubject(sess.AccessToken)
	if !ok || uid != sess.User.ID {
		t.Fatalf("expected subject %s, got %q %v", sess.User.ID, uid, ok)
	}
	if _, ok := engine.BearerSubject("garbage"); ok {
		t.Fatal("expected garbage token to yield no subject")
	}
}

func TestScanPayloadBlockMode(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := WithClientIP(context.Background(), "198.51.100.4")

	err := engine.ScanPayload(ctx, http.MethodPost, abuse.Payload{
		Path:        "/auth/login",
		Body:        []byte(`{"email":{"$gt":""},"password":"x"}`),
		ContentType: "application/json",
	}, "")
	if !errors.Is(err, ErrSuspiciousActivity) {
		t.Fatalf("expected ErrSuspiciousActivity, got %v", err)
	}
	if ProblemFor(err).Code != CodeSuspiciousActivity {
		t.Fatalf("expected SUSPICIOUS_ACTIVITY_DETECTED, got %s", ProblemFor(err).Code)
	}

	records := engine.SuspiciousActivity("198.51.100.4", "")
	if len(records) != 1 || records[0].Path != "/auth/login" {
		t.Fatalf("expected one logged record, got %+v", records)
	}
	if got := engine.MetricsSnapshot().Counters[MetricAbuseBlocked]; got != 1 {
		t.Fatalf("expected MetricAbuseBlocked=1, got %d", got)
	}

	if err := engine.ScanPayload(ctx, http.MethodGet, abuse.Payload{Path: "/users/me"}, ""); err != nil {
		t.Fatalf("expected clean payload to pass, got %v", err)
	}
}

func TestScanPayloadLogOnlyMode(t *testing.T) {
	cfg := testConfig()
	cfg.Abuse.Mode = abuse.ModeLogOnly
	env := newTestEnv(t, func(b *Builder) { b.WithConfig(cfg) })
	ctx := WithClientIP(context.Background(), "198.51.100.4")

	err := env.engine.ScanPayload(ctx, http.MethodPost, abuse.Payload{
		Path: "/search",
		Body: []byte(`{"q":"1 UNION SELECT password FROM users"}`),
	}, "user-1")
	if err != nil {
		t.Fatalf("expected log-only mode to pass, got %v", err)
	}
	if len(env.engine.SuspiciousActivity("198.51.100.4", "user-1")) != 1 {
		t.Fatal("expected the match to be logged")
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricAbuseFlagged]; got != 1 {
		t.Fatalf("expected MetricAbuseFlagged=1, got %d", got)
	}
}

func TestRunSweepsStaleAbuseFindings(t *testing.T) {
	cfg := testConfig()
	cfg.Abuse.Mode = abuse.ModeLogOnly
	cfg.Abuse.LogRetention = time.Hour
	cfg.Abuse.SweepInterval = 5 * time.Millisecond
	env := newTestEnv(t, func(b *Builder) { b.WithConfig(cfg) })
	ctx := WithClientIP(context.Background(), "198.51.100.7")

	if err := env.engine.ScanPayload(ctx, http.MethodGet, abuse.Payload{Path: "/files/../etc/passwd"}, ""); err != nil {
		t.Fatalf("expected log-only mode to pass, got %v", err)
	}
	if len(env.engine.SuspiciousActivity("198.51.100.7", "")) != 1 {
		t.Fatal("expected the match to be logged")
	}

	env.clock.Advance(2 * time.Hour)
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		env.engine.Run(runCtx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(env.engine.SuspiciousActivity("198.51.100.7", "")) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected the stale finding to be swept")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := env.engine.AbuseLog().Len(); got != 0 {
		t.Fatalf("expected no identities left, got %d", got)
	}
}

func TestVerifyCSRFSingleUse(t *testing.T) {
	engine, _ := newTestEngine(t)
	sess := registerUser(t, engine, "alice@example.com")

	if err := engine.VerifyCSRF(context.Background(), "", sess.User.ID); !errors.Is(err, csrf.ErrTokenMissing) {
		t.Fatalf("expected ErrTokenMissing, got %v", err)
	}
	if err := engine.VerifyCSRF(context.Background(), sess.CSRFToken, "someone-else"); !errors.Is(err, csrf.ErrTokenInvalid) {
		t.Fatalf("expected token bound to its user, got %v", err)
	}
	if err := engine.VerifyCSRF(context.Background(), sess.CSRFToken, sess.User.ID); err != nil {
		t.Fatalf("expected first use to pass, got %v", err)
	}
	if err := engine.VerifyCSRF(context.Background(), sess.CSRFToken, sess.User.ID); !errors.Is(err, csrf.ErrTokenInvalid) {
		t.Fatalf("expected second use to fail, got %v", err)
	}
}
