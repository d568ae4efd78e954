// Package tokens owns the credential lifecycle: issuing access/refresh pairs, stateless
// authentication of access tokens, single-use refresh rotation, and revocation.
//
// # Architecture boundaries
//
// Access tokens come from package jwt and are never stored. Refresh records live behind
// refresh.Store; the atomic Consume there is what makes rotation single-flight.
//
// # What this package must NOT do
//
//   - Look up users during Authenticate.
//   - Retry a failed refresh. A rejected refresh token is terminal for that token.
package tokens
