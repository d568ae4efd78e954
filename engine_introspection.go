package goShield

import (
	"context"
	"time"

	"github.com/MrEthical07/goShield/abuse"
)

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	Backend        string        `json:"backend"`
	RedisAvailable bool          `json:"redisAvailable"`
	RedisLatency   time.Duration `json:"redisLatency"`
}

// Healthy reports whether the shared state backend, if any, answered.
func (h HealthStatus) Healthy() bool {
	return h.Backend == "memory" || h.RedisAvailable
}

// Health pings Redis when the engine keeps its state there.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil {
		return HealthStatus{}
	}
	status := HealthStatus{Backend: e.backend}
	if e.redis == nil {
		return status
	}

	start := time.Now()
	err := e.redis.Ping(ctx).Err()
	status.RedisAvailable = err == nil
	status.RedisLatency = time.Since(start)
	return status
}

// OutstandingRefreshTokens reports how many refresh records userID holds.
func (e *Engine) OutstandingRefreshTokens(ctx context.Context, userID string) (int, error) {
	if e == nil || e.tokens == nil {
		return 0, ErrEngineNotReady
	}
	if userID == "" {
		return 0, ErrUserNotFound
	}
	return e.tokens.Outstanding(ctx, userID)
}

// SuspiciousActivity returns the recorded abuse matches of an ip and user pair. An empty
// userID selects anonymous requests.
func (e *Engine) SuspiciousActivity(ip, userID string) []abuse.Record {
	if e == nil || e.abuseLog == nil {
		return nil
	}
	return e.abuseLog.Entries(abuse.Identity(ip, userID))
}
