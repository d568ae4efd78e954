// Package refresh persists server-tracked refresh-token records.
//
// # Token format
//
// Clients hold an opaque base64url value. Stores only ever see its sha256 hash, so a leaked
// store snapshot cannot be replayed.
//
// # Architecture boundaries
//
// A Store offers one atomic validate-and-delete (Consume). Rotation, issuance of the new pair
// and the forced-logout policy live in package tokens.
//
// # What this package must NOT do
//
//   - Sign or parse access tokens.
//   - Retry a failed Consume.
package refresh
