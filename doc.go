// Package goShield is the request-security core of a multi-tenant account dashboard: JWT
// access tokens with rotating opaque refresh tokens, single-use CSRF tokens, sliding-window
// rate limits, injection detection and a capacity-limited, role-based account membership
// model.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goShield is the facade. It exposes [Engine], [Builder], [Config], the error taxonomy
// ([Problem], [ProblemFor]) and value types. The components live in their own packages
// (tokens, csrf, ratelimit, abuse, membership) and the HTTP pipeline in middleware and
// httpapi. Persistence for users and accounts is pluggable through [UserStore] and
// membership.Store; refresh records, CSRF tokens, rate-limit windows and emailed links stay
// in memory unless a Redis client is supplied.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder is allocation-only
//     until Build).
//   - Import middleware or httpapi (no import cycles).
package goShield
