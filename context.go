package goShield

import (
	"context"

	"github.com/MrEthical07/goShield/ratelimit"
)

type clientIPContextKey struct{}
type principalContextKey struct{}
type requestIDContextKey struct{}
type rateDecisionContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The engine uses it as the rate-limit
// identity of anonymous callers and in audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// ClientIP returns the address stored by WithClientIP, or "".
func ClientIP(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

// WithPrincipal attaches the authenticated caller to ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFrom returns the principal stored by WithPrincipal.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	p, ok := ctx.Value(principalContextKey{}).(*Principal)
	return p, ok && p != nil
}

// WithRequestID tags ctx with a correlation id carried into audit events and logs.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}

// WithRateDecision records the rate-limit hit taken for the current request, so a flow that
// succeeds can give it back when its class counts failures only.
func WithRateDecision(ctx context.Context, d ratelimit.Decision) context.Context {
	return context.WithValue(ctx, rateDecisionContextKey{}, d)
}

// RateDecisionFrom returns the decision stored by WithRateDecision.
func RateDecisionFrom(ctx context.Context) (ratelimit.Decision, bool) {
	if ctx == nil {
		return ratelimit.Decision{}, false
	}
	d, ok := ctx.Value(rateDecisionContextKey{}).(ratelimit.Decision)
	return d, ok
}
