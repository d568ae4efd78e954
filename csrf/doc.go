// Package csrf issues and consumes single-use anti-forgery tokens bound to a user.
//
// # Architecture boundaries
//
// Tokens are stored by hash behind Store. Consume is one atomic step: lookup, expiry check,
// owner check and delete.
//
// # What this package must NOT do
//
//   - Authenticate the request. The caller supplies the already-authenticated user id.
//   - Apply itself to read-only methods.
package csrf
