package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrRateLimited is matched by every *ExceededError.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnknownClass is returned for a class without a rule.
	ErrUnknownClass = errors.New("unknown rate limit class")
	// ErrStoreUnavailable wraps backend failures.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
)

// ExceededError describes a denial.
type ExceededError struct {
	Class      Class
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Class, e.RetryAfter)
}

func (e *ExceededError) Is(target error) bool {
	return target == ErrRateLimited
}

// Decision is the outcome of an allowed Check. Keep it to Release the hit later.
type Decision struct {
	Class     Class
	Key       string
	Limit     int
	Remaining int
	mark      string
}

// Config tunes a Limiter.
type Config struct {
	Rules         map[Class]Rule
	SweepInterval time.Duration
	Now           func() time.Time
	Logger        *slog.Logger
}

// Limiter applies class rules over a Store.
type Limiter struct {
	store  Store
	config Config
}

// New returns a Limiter. Missing rules are filled from DefaultRules.
func New(store Store, cfg Config) *Limiter {
	rules := DefaultRules()
	for class, rule := range cfg.Rules {
		rules[class] = rule
	}
	cfg.Rules = rules
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 10 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Limiter{store: store, config: cfg}
}

// Rule returns the rule for class.
func (l *Limiter) Rule(class Class) (Rule, bool) {
	rule, ok := l.config.Rules[class]
	return rule, ok
}

// Check records a hit for identity under class, or denies with *ExceededError.
func (l *Limiter) Check(ctx context.Context, identity string, class Class) (Decision, error) {
	rule, ok := l.config.Rules[class]
	if !ok {
		return Decision{}, fmt.Errorf("%w: %s", ErrUnknownClass, class)
	}

	key := string(class) + ":" + identity
	now := l.config.Now()
	mark := ulid.Make().String()

	res, err := l.store.Hit(ctx, key, rule.Limit, rule.Window, now, mark)
	if err != nil {
		return Decision{}, err
	}

	if !res.Allowed {
		retry := rule.Window
		if !res.Oldest.IsZero() {
			retry = rule.Window - now.Sub(res.Oldest)
		}
		if retry < 0 {
			retry = 0
		}
		l.config.Logger.Warn("goShield: rate limit exceeded",
			"class", string(class),
			"identity", identity,
			"retry_after", retry,
		)
		return Decision{}, &ExceededError{
			Class:      class,
			Code:       rule.Code,
			Message:    rule.Message,
			RetryAfter: retry,
		}
	}

	return Decision{
		Class:     class,
		Key:       key,
		Limit:     rule.Limit,
		Remaining: rule.Limit - res.Count,
		mark:      mark,
	}, nil
}

// Release gives back the hit recorded by d.
func (l *Limiter) Release(ctx context.Context, d Decision) error {
	if d.mark == "" {
		return nil
	}
	return l.store.Release(ctx, d.Key, d.mark)
}

// Run sweeps idle keys every SweepInterval until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := l.store.Sweep(ctx, l.config.Now()); err != nil {
				l.config.Logger.Error("goShield: rate limit sweep failed", "error", err)
			}
		}
	}
}
