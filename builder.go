package goShield

import (
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/goShield/abuse"
	"github.com/MrEthical07/goShield/csrf"
	"github.com/MrEthical07/goShield/internal/audit"
	"github.com/MrEthical07/goShield/internal/stores"
	"github.com/MrEthical07/goShield/jwt"
	"github.com/MrEthical07/goShield/membership"
	"github.com/MrEthical07/goShield/password"
	"github.com/MrEthical07/goShield/ratelimit"
	"github.com/MrEthical07/goShield/refresh"
	"github.com/MrEthical07/goShield/tokens"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. Configure it during initialization, call Build once, and
// discard it.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users    UserStore
	accounts membership.Store
	mailer   Mailer
	logger   *slog.Logger
	sink     AuditSink
	now      func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis moves refresh records, CSRF tokens, rate-limit windows and emailed challenges
// into Redis. Without it every store is in-process memory.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserStore(s UserStore) *Builder {
	b.users = s
	return b
}

func (b *Builder) WithAccountStore(s membership.Store) *Builder {
	b.accounts = s
	return b
}

func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink replaces the default slog audit sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithClock overrides the engine time source. Tests use it to move past expiries.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}
	users := b.users
	if users == nil {
		users = NewMemoryUserStore()
	}
	accounts := b.accounts
	if accounts == nil {
		accounts = membership.NewMemoryStore()
	}
	mailer := b.mailer
	if mailer == nil {
		mailer = LogMailer{Logger: logger}
	}

	// -------- STORES --------
	var (
		refreshStore refresh.Store
		csrfStore    csrf.Store
		rateStore    ratelimit.Store
		verifyStore  stores.ChallengeStore
		resetStore   stores.ChallengeStore
	)
	backend := "memory"
	if b.redis != nil {
		backend = "redis"
		refreshStore = refresh.NewRedisStore(b.redis, cfg.Refresh.RedisPrefix)
		csrfStore = csrf.NewRedisStore(b.redis, cfg.CSRF.RedisPrefix)
		rateStore = ratelimit.NewRedisStore(b.redis, cfg.RateLimit.RedisPrefix)
		verifyStore = stores.NewRedisChallengeStore(b.redis, cfg.Verification.RedisPrefix)
		resetStore = stores.NewRedisChallengeStore(b.redis, cfg.Reset.RedisPrefix)
	} else {
		refreshStore = refresh.NewMemoryStore()
		csrfStore = csrf.NewMemoryStore()
		rateStore = ratelimit.NewMemoryStore()
		verifyStore = stores.NewMemoryChallengeStore()
		resetStore = stores.NewMemoryChallengeStore()
	}

	// -------- TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}
	tm, err := tokens.NewManager(jm, refreshStore, tokens.Config{
		RefreshTTL:    cfg.Refresh.TTL,
		SweepInterval: cfg.Refresh.SweepInterval,
		Now:           now,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	// -------- AUDIT --------
	sink := b.sink
	if sink == nil {
		sink = audit.NewSlogSink(logger)
	}

	engine := &Engine{
		config:        cfg,
		backend:       backend,
		redis:         b.redis,
		logger:        logger,
		now:           now,
		users:         users,
		mailer:        mailer,
		tokens:        tm,
		verifications: verifyStore,
		resets:        resetStore,
		hasher:        ph,
		csrf: csrf.NewGuard(csrfStore, csrf.Config{
			TTL:           cfg.CSRF.TTL,
			SweepInterval: cfg.CSRF.SweepInterval,
			Now:           now,
			Logger:        logger,
		}),
		limiter: ratelimit.New(rateStore, ratelimit.Config{
			Rules:         cfg.RateLimit.Rules,
			SweepInterval: cfg.RateLimit.SweepInterval,
			Now:           now,
			Logger:        logger,
		}),
		detector: abuse.NewDetector(cfg.Abuse.Mode),
		abuseLog: abuse.NewLog(cfg.Abuse.MaxLogEntries, cfg.Abuse.MaxLogIdentities),
		authority: membership.NewAuthority(accounts,
			membership.WithClock(now),
			membership.WithTrialPeriod(cfg.Membership.TrialPeriod),
		),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			Now:        now,
		}, sink),
		metrics: NewMetrics(cfg.Metrics),
	}

	b.built = true

	return engine, nil
}
