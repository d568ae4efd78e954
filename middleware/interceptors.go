package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	goShield "github.com/MrEthical07/goShield"
	"github.com/MrEthical07/goShield/abuse"
	"github.com/MrEthical07/goShield/csrf"
	"github.com/MrEthical07/goShield/internal/clientip"
	"github.com/MrEthical07/goShield/membership"
	"github.com/MrEthical07/goShield/permission"
	"github.com/MrEthical07/goShield/ratelimit"
	"github.com/MrEthical07/goShield/tokens"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

type accountContextKey struct{}

// AccountFrom returns the account loaded by Authorize.
func AccountFrom(ctx context.Context) (*membership.Account, bool) {
	acct, ok := ctx.Value(accountContextKey{}).(*membership.Account)
	return acct, ok
}

// Pipeline builds interceptors bound to an Engine.
type Pipeline struct {
	engine *goShield.Engine
	config goShield.HTTPConfig
	logger *slog.Logger
}

// New returns a Pipeline over engine using its HTTP configuration.
func New(engine *goShield.Engine) *Pipeline {
	return &Pipeline{
		engine: engine,
		config: engine.Config().HTTP,
		logger: engine.Logger(),
	}
}

// Logger is the logger problems are reported to.
func (p *Pipeline) Logger() *slog.Logger {
	return p.logger
}

// Chain returns an empty chain sharing the pipeline logger.
func (p *Pipeline) Chain(interceptors ...Interceptor) Chain {
	return NewChain(p.logger, interceptors...)
}

// Hygiene is the request-independent prefix of every chain.
func (p *Pipeline) Hygiene() Chain {
	return p.Chain(
		p.Identify(),
		SecurityHeaders(p.config.Production),
		MaxBody(p.config.MaxBodyBytes),
		ContentType(),
		ParameterPollution(p.config.RepeatableParams...),
	)
}

// Public is hygiene, the class rate limit and the abuse scan.
func (p *Pipeline) Public(class ratelimit.Class) Chain {
	return p.Hygiene().Append(p.RateLimit(class), p.AbuseScan())
}

// Protected extends Public with authentication and the CSRF check.
func (p *Pipeline) Protected(class ratelimit.Class) Chain {
	return p.Public(class).Append(p.Authenticate(), p.CSRF())
}

// Identify resolves the client IP and request id into the context.
func (p *Pipeline) Identify() Interceptor {
	return InterceptorFunc(func(h http.Header, r *http.Request) (*http.Request, Outcome) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		h.Set(HeaderRequestID, id)

		ctx := goShield.WithClientIP(r.Context(), clientip.RealClientIP(r, p.config.TrustProxy))
		ctx = goShield.WithRequestID(ctx, id)
		return r.WithContext(ctx), Continue()
	})
}

// rateIdentity keys authenticated callers by user and everyone else by IP.
func (p *Pipeline) rateIdentity(r *http.Request) string {
	if token, ok := BearerToken(r); ok {
		if uid, ok := p.engine.BearerSubject(token); ok {
			return "user:" + uid
		}
	}
	return "ip:" + goShield.ClientIP(r.Context())
}

// RateLimit records a hit under class. The decision travels in the context so flows that
// only count failures can give the hit back.
func (p *Pipeline) RateLimit(class ratelimit.Class) Interceptor {
	return InterceptorFunc(func(h http.Header, r *http.Request) (*http.Request, Outcome) {
		d, err := p.engine.CheckRate(r.Context(), p.rateIdentity(r), class)
		if err != nil {
			return r, ShortCircuit(goShield.ProblemFor(err))
		}
		h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		return r.WithContext(goShield.WithRateDecision(r.Context(), d)), Continue()
	})
}

// AbuseScan runs the injection detector over the path, query, route params and body.
func (p *Pipeline) AbuseScan() Interceptor {
	return InterceptorFunc(func(_ http.Header, r *http.Request) (*http.Request, Outcome) {
		payload := abuse.Payload{
			Path:        r.URL.Path,
			Body:        Body(r),
			ContentType: r.Header.Get("Content-Type"),
			Query:       r.URL.Query(),
		}
		if rc := chi.RouteContext(r.Context()); rc != nil && len(rc.URLParams.Keys) > 0 {
			payload.Params = make(map[string]string, len(rc.URLParams.Keys))
			for i, k := range rc.URLParams.Keys {
				payload.Params[k] = rc.URLParams.Values[i]
			}
		}

		userID := ""
		if token, ok := BearerToken(r); ok {
			userID, _ = p.engine.BearerSubject(token)
		}
		if err := p.engine.ScanPayload(r.Context(), r.Method, payload, userID); err != nil {
			return r, ShortCircuit(goShield.ProblemFor(err))
		}
		return r, Continue()
	})
}

// Authenticate turns the bearer token into a principal. The user must exist and be active.
func (p *Pipeline) Authenticate() Interceptor {
	return InterceptorFunc(func(_ http.Header, r *http.Request) (*http.Request, Outcome) {
		token, ok := BearerToken(r)
		if !ok {
			return r, ShortCircuit(goShield.ProblemFor(tokens.ErrNoToken))
		}
		principal, err := p.engine.Authenticate(r.Context(), token)
		if err != nil {
			return r, ShortCircuit(goShield.ProblemFor(err))
		}
		return r.WithContext(goShield.WithPrincipal(r.Context(), principal)), Continue()
	})
}

// CSRF consumes the anti-forgery token of mutating requests. Every authenticated response,
// read-only ones included, carries a fresh token in the X-CSRF-Token header.
func (p *Pipeline) CSRF() Interceptor {
	return InterceptorFunc(func(h http.Header, r *http.Request) (*http.Request, Outcome) {
		principal, ok := goShield.PrincipalFrom(r.Context())
		if csrf.Exempt(r.Method) {
			if ok {
				p.reissueCSRF(h, r, principal.UserID())
			}
			return r, Continue()
		}
		if !ok {
			return r, ShortCircuit(goShield.ProblemFor(goShield.ErrNotAuthenticated))
		}

		token := csrf.TokenFromRequest(r, Body(r))
		if err := p.engine.VerifyCSRF(r.Context(), token, principal.UserID()); err != nil {
			return r, ShortCircuit(goShield.ProblemFor(err))
		}
		p.reissueCSRF(h, r, principal.UserID())
		return r, Continue()
	})
}

func (p *Pipeline) reissueCSRF(h http.Header, r *http.Request, userID string) {
	next, err := p.engine.IssueCSRF(r.Context(), userID)
	if err != nil {
		p.logger.WarnContext(r.Context(), "goShield: csrf reissue failed", "user_id", userID, "error", err)
		return
	}
	h.Set(csrf.HeaderName, next)
}

// Authorize requires perm in the principal's account. The account is stored for handlers.
func (p *Pipeline) Authorize(perm permission.Name) Interceptor {
	return InterceptorFunc(func(_ http.Header, r *http.Request) (*http.Request, Outcome) {
		principal, _ := goShield.PrincipalFrom(r.Context())
		acct, err := p.engine.Authorize(r.Context(), principal, perm)
		if err != nil {
			return r, ShortCircuit(goShield.ProblemFor(err))
		}
		return r.WithContext(context.WithValue(r.Context(), accountContextKey{}, acct)), Continue()
	})
}

// RequireVerifiedEmail rejects principals whose email is unverified.
func (p *Pipeline) RequireVerifiedEmail() Interceptor {
	return InterceptorFunc(func(_ http.Header, r *http.Request) (*http.Request, Outcome) {
		principal, ok := goShield.PrincipalFrom(r.Context())
		if !ok {
			return r, ShortCircuit(goShield.ProblemFor(goShield.ErrNotAuthenticated))
		}
		if !principal.User.EmailVerified {
			return r, ShortCircuit(goShield.ProblemFor(goShield.ErrEmailNotVerified))
		}
		return r, Continue()
	})
}

// RequireRole admits principals holding one of roles.
func RequireRole(roles ...membership.Role) Interceptor {
	return InterceptorFunc(func(_ http.Header, r *http.Request) (*http.Request, Outcome) {
		principal, ok := goShield.PrincipalFrom(r.Context())
		if !ok {
			return r, ShortCircuit(goShield.ProblemFor(goShield.ErrNotAuthenticated))
		}
		for _, role := range roles {
			if principal.User.Role == role {
				return r, Continue()
			}
		}
		problem := goShield.ProblemFor(membership.ErrInsufficientPermissions).
			With("requiredRoles", roles)
		if principal.User.Role != "" {
			problem = problem.With("userRole", principal.User.Role)
		}
		return r, ShortCircuit(problem)
	})
}

// RequireOwner admits account owners only.
func RequireOwner() Interceptor {
	return InterceptorFunc(func(_ http.Header, r *http.Request) (*http.Request, Outcome) {
		principal, ok := goShield.PrincipalFrom(r.Context())
		if !ok {
			return r, ShortCircuit(goShield.ProblemFor(goShield.ErrNotAuthenticated))
		}
		if principal.User.Role != membership.RoleOwner {
			return r, ShortCircuit(goShield.ProblemFor(membership.ErrOwnershipRequired))
		}
		return r, Continue()
	})
}

// RequireAdmin admits owners and admins.
func RequireAdmin() Interceptor {
	return RequireRole(membership.RoleOwner, membership.RoleAdmin)
}
