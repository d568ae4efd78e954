package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	goShield "github.com/MrEthical07/goShield"
	promexport "github.com/MrEthical07/goShield/metrics/export/prometheus"
	"github.com/MrEthical07/goShield/middleware"
	"github.com/MrEthical07/goShield/permission"
	"github.com/MrEthical07/goShield/ratelimit"
	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

// Options tune the server around the engine.
type Options struct {
	// BurstRPS and BurstSize shape the per-IP token bucket. Zero picks 20 rps, burst 40.
	BurstRPS  rate.Limit
	BurstSize int
	// DisableBurstGuard removes the token bucket entirely.
	DisableBurstGuard bool
	// RefreshCookie also hands the refresh token out as an HttpOnly cookie.
	RefreshCookie bool
}

// Server holds the router and its collaborators.
type Server struct {
	engine   *goShield.Engine
	pipeline *middleware.Pipeline
	logger   *slog.Logger
	opts     Options
	burst    *burstGuard
	metrics  *httpMetrics
	router   chi.Router
}

// New builds the router for engine.
func New(engine *goShield.Engine, opts Options) *Server {
	s := &Server{
		engine:   engine,
		pipeline: middleware.New(engine),
		logger:   engine.Logger(),
		opts:     opts,
		metrics:  newHTTPMetrics(),
	}
	if !opts.DisableBurstGuard {
		s.burst = newBurstGuard(opts.BurstRPS, opts.BurstSize, engine.Config().HTTP.TrustProxy)
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run sweeps idle burst limiters until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	if s.burst == nil {
		<-ctx.Done()
		return
	}
	s.burst.run(ctx)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.metrics.instrument)
	if s.burst != nil {
		r.Use(s.burst.middleware(s))
	}
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteProblem(w, req, s.logger,
			goShield.NewProblem(http.StatusNotFound, goShield.CodeNotFound, "Route not found."))
	})

	r.Get("/healthz", s.health)
	r.Method(http.MethodGet, "/metrics",
		promexport.Handler(promexport.NewCollector(s.engine), s.metrics.collectors()...))

	p := s.pipeline
	r.Route("/api/auth", func(r chi.Router) {
		r.With(p.Public(ratelimit.ClassRegister).Middleware()).Post("/register", s.register)
		r.With(p.Public(ratelimit.ClassLogin).Middleware()).Post("/login", s.login)
		r.With(p.Public(ratelimit.ClassSensitive).Middleware()).Post("/refresh", s.refresh)
		r.With(p.Public(ratelimit.ClassGeneric).Middleware()).Post("/verify-email", s.verifyEmail)
		r.With(p.Public(ratelimit.ClassPasswordReset).Middleware()).Post("/resend-verification", s.resendVerification)
		r.With(p.Public(ratelimit.ClassPasswordReset).Middleware()).Post("/forgot-password", s.forgotPassword)
		r.With(p.Public(ratelimit.ClassPasswordReset).Middleware()).Post("/reset-password", s.resetPassword)
		r.With(p.Protected(ratelimit.ClassGeneric).Middleware()).Post("/logout", s.logout)
		r.With(p.Protected(ratelimit.ClassGeneric).Middleware()).Get("/me", s.me)
	})

	r.Route("/api/account", func(r chi.Router) {
		r.With(p.Protected(ratelimit.ClassGeneric).Append(p.Authorize(permission.Monitoring)).Middleware()).
			Get("/", s.account)

		members := p.Protected(ratelimit.ClassSensitive).Append(middleware.RequireAdmin())
		r.With(members.Middleware()).Post("/members", s.addMember)
		r.With(members.Middleware()).Delete("/members/{userID}", s.removeMember)
	})

	r.With(p.Protected(ratelimit.ClassFinancial).Append(p.Authorize(permission.Financial)).Middleware()).
		Get("/api/financial/summary", s.financialSummary)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status := s.engine.Health(r.Context())
	if !status.Healthy() {
		middleware.WriteProblem(w, r, s.logger, goShield.NewProblem(http.StatusServiceUnavailable,
			goShield.CodeInternal, "State backend unavailable.").With("backend", status.Backend))
		return
	}
	middleware.WriteJSON(w, http.StatusOK, "ok", status)
}
