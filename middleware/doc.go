// Package middleware is the request security pipeline: an ordered list of interceptors that
// each either continue with an enriched request or short-circuit with a goShield.Problem.
//
// # Order
//
// The stock chains run, in order:
//
//   - [Pipeline.Identify]: client IP and request id.
//   - [SecurityHeaders], [MaxBody], [ContentType], [ParameterPollution]: request hygiene.
//   - [Pipeline.RateLimit]: sliding-window class budget.
//   - [Pipeline.AbuseScan]: injection signatures over path, query and body.
//   - [Pipeline.Authenticate]: bearer token to principal.
//   - [Pipeline.CSRF]: single-use token on mutating methods.
//   - [Pipeline.Authorize] and the Require* checks: membership decisions.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Token parsing, store access and
// permission resolution stay in the Engine. Interceptors never write a response body; the
// chain driver renders the problem envelope of whichever interceptor stopped the request.
package middleware
