package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	goShield "github.com/MrEthical07/goShield"
	"github.com/MrEthical07/goShield/internal/clientip"
	"github.com/MrEthical07/goShield/middleware"
	"github.com/MrEthical07/goShield/ratelimit"
	"golang.org/x/time/rate"
)

const (
	defaultBurstRPS      = 20
	defaultBurstSize     = 40
	burstCleanupInterval = 5 * time.Minute
	burstLimiterTTL      = 30 * time.Minute
)

type limiterEntry struct {
	limiter *rate.Limiter
	lastUse time.Time
}

// burstGuard is a token bucket per client IP. It only absorbs floods; the sliding-window
// classes of the engine still apply behind it.
type burstGuard struct {
	mu         sync.Mutex
	entries    map[string]*limiterEntry
	limit      rate.Limit
	burst      int
	trustProxy bool
	now        func() time.Time
}

func newBurstGuard(limit rate.Limit, burst int, trustProxy bool) *burstGuard {
	if limit <= 0 {
		limit = defaultBurstRPS
	}
	if burst <= 0 {
		burst = defaultBurstSize
	}
	return &burstGuard{
		entries:    make(map[string]*limiterEntry),
		limit:      limit,
		burst:      burst,
		trustProxy: trustProxy,
		now:        time.Now,
	}
}

func (g *burstGuard) limiter(ip string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(g.limit, g.burst)}
		g.entries[ip] = e
	}
	e.lastUse = g.now()
	return e.limiter
}

// allow reports whether ip may proceed, and otherwise how long until a token frees up.
func (g *burstGuard) allow(ip string) (bool, time.Duration) {
	now := g.now()
	res := g.limiter(ip).ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	delay := res.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	res.CancelAt(now)
	return false, delay
}

// sweep drops limiters idle for longer than burstLimiterTTL.
func (g *burstGuard) sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := g.now().Add(-burstLimiterTTL)
	removed := 0
	for ip, e := range g.entries {
		if e.lastUse.Before(cutoff) {
			delete(g.entries, ip)
			removed++
		}
	}
	return removed
}

func (g *burstGuard) run(ctx context.Context) {
	ticker := time.NewTicker(burstCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.sweep()
		}
	}
}

func (g *burstGuard) middleware(s *Server) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, retry := g.allow(clientip.RealClientIP(r, g.trustProxy))
			if !ok {
				middleware.WriteProblem(w, r, s.logger, goShield.ProblemFor(&ratelimit.ExceededError{
					Class:      "burst",
					Message:    "Too many requests. Please slow down.",
					RetryAfter: retry,
				}))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
