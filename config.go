package goShield

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goShield/abuse"
	"github.com/MrEthical07/goShield/membership"
	"github.com/MrEthical07/goShield/password"
	"github.com/MrEthical07/goShield/ratelimit"
)

// Access-token lifetime bounds.
const (
	MinAccessTTL = 15 * time.Minute
	MaxAccessTTL = 60 * time.Minute
)

// Config is the full engine configuration. Build it once, usually from DefaultConfig, and
// treat it as immutable after Build.
type Config struct {
	JWT          JWTConfig
	Refresh      RefreshConfig
	CSRF         CSRFConfig
	RateLimit    RateLimitConfig
	Abuse        AbuseConfig
	Membership   MembershipConfig
	Password     PasswordConfig
	Verification VerificationConfig
	Reset        ResetConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
	HTTP         HTTPConfig
}

/*
====================================
TOKENS
====================================
*/

// JWTConfig controls access-token signing.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// RefreshConfig controls refresh records.
type RefreshConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
	RedisPrefix   string
}

// CSRFConfig controls anti-forgery tokens.
type CSRFConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
	RedisPrefix   string
}

/*
====================================
THROTTLING AND ABUSE
====================================
*/

// RateLimitConfig overrides class budgets. Classes left out keep their defaults.
type RateLimitConfig struct {
	Rules         map[ratelimit.Class]ratelimit.Rule
	SweepInterval time.Duration
	RedisPrefix   string
}

// AbuseConfig controls the payload scanner and its suspicious-activity log. The log keeps
// MaxLogEntries findings for each of at most MaxLogIdentities ip:user keys; Run drops findings
// older than LogRetention every SweepInterval. A zero interval or retention disables the sweep.
type AbuseConfig struct {
	Mode             abuse.Mode
	MaxLogEntries    int
	MaxLogIdentities int
	LogRetention     time.Duration
	SweepInterval    time.Duration
}

/*
====================================
ACCOUNTS AND CREDENTIALS
====================================
*/

// MembershipConfig controls new accounts.
type MembershipConfig struct {
	TrialPeriod time.Duration
	DefaultPlan membership.Plan
}

// PasswordConfig holds argon2id costs and the strength policy for new passwords.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
	Policy         password.Policy
}

// VerificationConfig controls email verification links.
type VerificationConfig struct {
	TokenTTL        time.Duration
	RequireForLogin bool
	RedisPrefix     string
}

// ResetConfig controls password reset links.
type ResetConfig struct {
	TokenTTL    time.Duration
	RedisPrefix string
}

/*
====================================
OBSERVABILITY AND TRANSPORT
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// HTTPConfig is consumed by the request pipeline.
type HTTPConfig struct {
	Production   bool
	MaxBodyBytes int64
	// TrustProxy makes client IP resolution honour X-Forwarded-For and X-Real-IP.
	TrustProxy bool
	// RepeatableParams are query keys allowed to appear more than once.
	RepeatableParams []string
}

// DefaultConfig returns the stock configuration. Signing keys are left empty and must be
// supplied before Build.
func DefaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		JWT: JWTConfig{
			AccessTTL:     MinAccessTTL,
			SigningMethod: "hs256",
			Issuer:        "goshield",
		},
		Refresh: RefreshConfig{
			TTL:           7 * 24 * time.Hour,
			SweepInterval: 10 * time.Minute,
			RedisPrefix:   "gs",
		},
		CSRF: CSRFConfig{
			TTL:           time.Hour,
			SweepInterval: 10 * time.Minute,
			RedisPrefix:   "gs",
		},
		RateLimit: RateLimitConfig{
			SweepInterval: 10 * time.Minute,
			RedisPrefix:   "gs",
		},
		Abuse: AbuseConfig{
			Mode:             abuse.ModeBlock,
			MaxLogEntries:    100,
			MaxLogIdentities: 10000,
			LogRetention:     24 * time.Hour,
			SweepInterval:    10 * time.Minute,
		},
		Membership: MembershipConfig{
			TrialPeriod: membership.TrialPeriod,
			DefaultPlan: membership.PlanBasic,
		},
		Password: PasswordConfig{
			Memory:         pw.Memory,
			Time:           pw.Time,
			Parallelism:    pw.Parallelism,
			SaltLength:     pw.SaltLength,
			KeyLength:      pw.KeyLength,
			UpgradeOnLogin: true,
			Policy:         password.DefaultPolicy(),
		},
		Verification: VerificationConfig{
			TokenTTL:    24 * time.Hour,
			RedisPrefix: "gs",
		},
		Reset: ResetConfig{
			TokenTTL:    10 * time.Minute,
			RedisPrefix: "gs",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		HTTP: HTTPConfig{
			MaxBodyBytes: 10 << 20,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.RateLimit.Rules != nil {
		out.RateLimit.Rules = make(map[ratelimit.Class]ratelimit.Rule, len(cfg.RateLimit.Rules))
		for k, v := range cfg.RateLimit.Rules {
			out.RateLimit.Rules[k] = v
		}
	}
	out.HTTP.RepeatableParams = append([]string(nil), cfg.HTTP.RepeatableParams...)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks the configuration for unusable or unsafe values.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL < MinAccessTTL || c.JWT.AccessTTL > MaxAccessTTL {
		return fmt.Errorf("JWT AccessTTL must be between %s and %s", MinAccessTTL, MaxAccessTTL)
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a secret of at least 32 bytes")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey and PublicKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be within [0, 2m]")
	}
	if c.JWT.Audience != "" && strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT Audience must not be blank")
	}

	// Refresh and CSRF
	if c.Refresh.TTL <= c.JWT.AccessTTL {
		return errors.New("Refresh TTL must exceed the access token TTL")
	}
	if c.Refresh.SweepInterval <= 0 || c.CSRF.SweepInterval <= 0 || c.RateLimit.SweepInterval <= 0 {
		return errors.New("sweep intervals must be > 0")
	}
	if c.CSRF.TTL <= 0 {
		return errors.New("CSRF TTL must be > 0")
	}

	// Rate limits
	for class, rule := range c.RateLimit.Rules {
		if rule.Limit <= 0 || rule.Window <= 0 {
			return fmt.Errorf("rate limit rule %q needs a positive limit and window", class)
		}
		if rule.Code == "" {
			return fmt.Errorf("rate limit rule %q needs a code", class)
		}
	}

	// Abuse
	switch c.Abuse.Mode {
	case abuse.ModeBlock, abuse.ModeLogOnly:
	default:
		return errors.New("Abuse Mode must be block or log-only")
	}

	// Membership
	if c.Membership.TrialPeriod <= 0 {
		return errors.New("Membership TrialPeriod must be > 0")
	}
	switch c.Membership.DefaultPlan {
	case membership.PlanBasic, membership.PlanPremium, membership.PlanEnterprise:
	default:
		return errors.New("Membership DefaultPlan is invalid")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 || c.Password.Parallelism < 1 {
		return errors.New("Password Time and Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 || c.Password.KeyLength < 16 {
		return errors.New("Password SaltLength and KeyLength must be >= 16")
	}
	if p := c.Password.Policy; p.MaxLength > 0 && p.MinLength > p.MaxLength {
		return errors.New("Password Policy MinLength exceeds MaxLength")
	}

	// Links
	if c.Verification.TokenTTL <= 0 {
		return errors.New("Verification TokenTTL must be > 0")
	}
	if c.Reset.TokenTTL <= 0 || c.Reset.TokenTTL > time.Hour {
		return errors.New("Reset TokenTTL must be within (0, 1h]")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	// HTTP
	if c.HTTP.MaxBodyBytes <= 0 {
		return errors.New("HTTP MaxBodyBytes must be > 0")
	}

	return nil
}
