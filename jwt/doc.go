// Package jwt signs and verifies the short-lived access tokens handed to clients.
//
// # Architecture boundaries
//
// Verification is stateless: signature, algorithm, issuer, audience and expiry. Whether the
// subject still exists or is active is decided by the caller.
//
// # What this package must NOT do
//
//   - Access Redis or any store.
//   - Issue or track refresh tokens.
package jwt
