package middleware

import (
	"log/slog"
	"net/http"

	goShield "github.com/MrEthical07/goShield"
)

// Outcome is the verdict of one interceptor.
type Outcome struct {
	problem *goShield.Problem
}

// Continue lets the request proceed to the next interceptor.
func Continue() Outcome {
	return Outcome{}
}

// ShortCircuit stops the chain and renders p.
func ShortCircuit(p *goShield.Problem) Outcome {
	return Outcome{problem: p}
}

// Stopped reports whether the chain must end here.
func (o Outcome) Stopped() bool {
	return o.problem != nil
}

func (o Outcome) Problem() *goShield.Problem {
	return o.problem
}

// Interceptor inspects a request. It may set response headers and return a request carrying
// new context values. It never writes the body.
type Interceptor interface {
	Intercept(header http.Header, r *http.Request) (*http.Request, Outcome)
}

// InterceptorFunc adapts a function to Interceptor.
type InterceptorFunc func(header http.Header, r *http.Request) (*http.Request, Outcome)

func (f InterceptorFunc) Intercept(header http.Header, r *http.Request) (*http.Request, Outcome) {
	return f(header, r)
}

// Chain is an ordered list of interceptors.
type Chain struct {
	logger       *slog.Logger
	interceptors []Interceptor
}

// NewChain returns a chain running interceptors in order. A nil logger uses slog.Default.
func NewChain(logger *slog.Logger, interceptors ...Interceptor) Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return Chain{logger: logger, interceptors: append([]Interceptor(nil), interceptors...)}
}

// Append returns a new chain with more interceptors at the end. c is left unchanged.
func (c Chain) Append(interceptors ...Interceptor) Chain {
	out := make([]Interceptor, 0, len(c.interceptors)+len(interceptors))
	out = append(out, c.interceptors...)
	out = append(out, interceptors...)
	return Chain{logger: c.logger, interceptors: out}
}

// Len reports the number of interceptors.
func (c Chain) Len() int {
	return len(c.interceptors)
}

// Handler runs the chain in front of next.
func (c Chain) Handler(next http.Handler) http.Handler {
	logger := c.logger
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, ic := range c.interceptors {
			var out Outcome
			r, out = ic.Intercept(w.Header(), r)
			if out.Stopped() {
				WriteProblem(w, r, logger, out.Problem())
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Middleware adapts the chain to the func(http.Handler) http.Handler shape routers expect.
func (c Chain) Middleware() func(http.Handler) http.Handler {
	return c.Handler
}
