// Package ratelimit throttles requests per (identity, operation class) with a sliding-window
// log: each key keeps the timestamps of its allowed hits inside the trailing window.
//
// # Window semantics
//
// On every check the hits older than now-window are dropped. With fewer than Limit hits left
// the request is recorded and allowed; otherwise it is denied with
// RetryAfter = window - (now - oldest).
//
// Keys are "<class>:<identity>". Identity is a user id when known, else the client IP.
//
// # What this package must NOT do
//
//   - Decide the identity of a request.
//   - Share a lock between different keys.
package ratelimit
