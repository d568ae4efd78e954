package goShield

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goShield/abuse"
	"github.com/MrEthical07/goShield/membership"
	"github.com/MrEthical07/goShield/tokens"
)

func TestHealthMemoryBackend(t *testing.T) {
	engine, _ := newTestEngine(t)

	h := engine.Health(context.Background())
	if h.Backend != "memory" || !h.Healthy() {
		t.Fatalf("expected healthy memory backend, got %+v", h)
	}
}

func TestHealthRedisBackend(t *testing.T) {
	mr, rdb := newTestRedis(t)
	env := newTestEnv(t, func(b *Builder) { b.WithRedis(rdb) })

	h := env.engine.Health(context.Background())
	if h.Backend != "redis" || !h.RedisAvailable || !h.Healthy() {
		t.Fatalf("expected healthy redis backend, got %+v", h)
	}

	mr.Close()
	h = env.engine.Health(context.Background())
	if h.RedisAvailable || h.Healthy() {
		t.Fatalf("expected unhealthy after redis stops, got %+v", h)
	}
}

func TestRedisBackedFlow(t *testing.T) {
	_, rdb := newTestRedis(t)
	env := newTestEnv(t, func(b *Builder) { b.WithRedis(rdb) })
	ctx := context.Background()

	sess := registerUser(t, env.engine, "alice@example.com")
	if err := env.engine.VerifyEmail(ctx, env.mailer.last(t, "verify", "alice@example.com")); err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	next, err := env.engine.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, sess.RefreshToken); !errors.Is(err, tokens.ErrUnknownRefreshToken) {
		t.Fatalf("expected replay rejected, got %v", err)
	}

	p := principalOf(t, env.engine, next)
	if err := env.engine.VerifyCSRF(ctx, next.CSRFToken, p.UserID()); err != nil {
		t.Fatalf("csrf verify failed: %v", err)
	}

	if err := env.engine.ForgotPassword(ctx, "alice@example.com"); err != nil {
		t.Fatalf("forgot failed: %v", err)
	}
	if err := env.engine.ResetPassword(ctx, env.mailer.last(t, "reset", "alice@example.com"), "N3w!Secret"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if n, err := env.engine.OutstandingRefreshTokens(ctx, p.UserID()); err != nil || n != 0 {
		t.Fatalf("expected no refresh records after reset, got %d, %v", n, err)
	}
}

func TestOutstandingRefreshTokens(t *testing.T) {
	engine, _ := newTestEngine(t)
	sess := registerUser(t, engine, "alice@example.com")
	if _, err := engine.Login(context.Background(), "alice@example.com", testPassword); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	n, err := engine.OutstandingRefreshTokens(context.Background(), sess.User.ID)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 outstanding tokens, got %d, %v", n, err)
	}
	if _, err := engine.OutstandingRefreshTokens(context.Background(), ""); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestSecurityReport(t *testing.T) {
	engine, _ := newTestEngine(t)

	report := engine.SecurityReport()
	if report.SigningAlgorithm != "hs256" || report.StateBackend != "memory" {
		t.Fatalf("unexpected report %+v", report)
	}
	if !report.LoginThrottled || !report.AbuseBlocking {
		t.Fatalf("expected throttled login and blocking abuse, got %+v", report)
	}
	if len(report.RateRules) != 7 {
		t.Fatalf("expected every class in the report, got %d", len(report.RateRules))
	}
	if len(report.Warnings) != 0 {
		t.Fatalf("expected no warnings in development defaults, got %v", report.Warnings)
	}

	cfg := testConfig()
	cfg.HTTP.Production = true
	cfg.Abuse.Mode = abuse.ModeLogOnly
	prod := newTestEnv(t, func(b *Builder) { b.WithConfig(cfg) })
	if got := len(prod.engine.SecurityReport().Warnings); got != 3 {
		t.Fatalf("expected memory, abuse and audit warnings, got %d", got)
	}
}

func TestAuditEventsReachSink(t *testing.T) {
	sink := NewChannelSink(64)
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	env := newTestEnv(t, func(b *Builder) {
		b.WithConfig(cfg)
		b.WithAuditSink(sink)
	})

	ctx := WithRequestID(WithClientIP(context.Background(), "192.0.2.10"), "req-1")
	owner := principalOf(t, env.engine, registerUser(t, env.engine, "owner@example.com"))
	addMember(t, env.engine, owner, "admin@example.com", membership.RoleAdmin)
	_, _, err := env.engine.AddMember(ctx, owner, MemberInput{
		Name: "Second Admin", Email: "admin2@example.com", Password: testMemberPassword, Role: membership.RoleAdmin,
	})
	if !errors.Is(err, membership.ErrRoleConflict) {
		t.Fatalf("expected ErrRoleConflict, got %v", err)
	}
	env.engine.Close()

	var rejected *AuditEvent
	seen := map[string]int{}
	timeout := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case ev := <-sink.Events():
			seen[ev.EventType]++
			if ev.EventType == auditEventMemberAdded && !ev.Success {
				ev := ev
				rejected = &ev
			}
		case <-timeout:
			done = true
		default:
			done = true
		}
	}

	if seen[auditEventRegister] != 1 || seen[auditEventMemberAdded] != 2 {
		t.Fatalf("unexpected audit events %v", seen)
	}
	if rejected == nil {
		t.Fatal("expected a failed member_added event")
	}
	if rejected.Error != "role_conflict" || rejected.IP != "192.0.2.10" || rejected.RequestID != "req-1" {
		t.Fatalf("unexpected rejected event %+v", rejected)
	}
}
