package goShield

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goShield/membership"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	testPassword       = "Str0ng!Pass"
	testMemberPassword = "member1"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentMail struct {
	Kind  string
	To    string
	Token string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail bool
}

var errMailerDown = errors.New("smtp down")

func (m *recordingMailer) record(kind, to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errMailerDown
	}
	m.sent = append(m.sent, sentMail{Kind: kind, To: to, Token: token})
	return nil
}

func (m *recordingMailer) SendVerification(_ context.Context, to, _, token string) error {
	return m.record("verify", to, token)
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, to, _, token string) error {
	return m.record("reset", to, token)
}

func (m *recordingMailer) setFail(fail bool) {
	m.mu.Lock()
	m.fail = fail
	m.mu.Unlock()
}

// last returns the newest mail of kind sent to addr.
func (m *recordingMailer) last(t *testing.T, kind, addr string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Kind == kind && m.sent[i].To == addr {
			return m.sent[i].Token
		}
	}
	t.Fatalf("no %s mail sent to %s", kind, addr)
	return ""
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = false
	return cfg
}

type testEnv struct {
	engine *Engine
	mailer *recordingMailer
	clock  *testClock
	users  *MemoryUserStore
}

func newTestEnv(t *testing.T, mutate func(*Builder)) *testEnv {
	t.Helper()

	env := &testEnv{
		mailer: &recordingMailer{},
		clock:  newTestClock(),
		users:  NewMemoryUserStore(),
	}
	b := New().
		WithConfig(testConfig()).
		WithUserStore(env.users).
		WithMailer(env.mailer).
		WithClock(env.clock.Now)
	if mutate != nil {
		mutate(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func newTestEngine(t *testing.T) (*Engine, *recordingMailer) {
	t.Helper()
	env := newTestEnv(t, nil)
	return env.engine, env.mailer
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func registerUser(t *testing.T, engine *Engine, email string) *Session {
	t.Helper()
	sess, err := engine.Register(context.Background(), RegisterInput{
		Name:     "Test Owner",
		Email:    email,
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("register %s failed: %v", email, err)
	}
	return sess
}

func principalOf(t *testing.T, engine *Engine, sess *Session) *Principal {
	t.Helper()
	p, err := engine.Authenticate(context.Background(), sess.AccessToken)
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	return p
}

func addMember(t *testing.T, engine *Engine, actor *Principal, email string, role membership.Role) *User {
	t.Helper()
	u, _, err := engine.AddMember(context.Background(), actor, MemberInput{
		Name:     "Team Member",
		Email:    email,
		Password: testMemberPassword,
		Role:     role,
	})
	if err != nil {
		t.Fatalf("add %s as %s failed: %v", email, role, err)
	}
	return u
}
