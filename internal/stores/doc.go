// Package stores keeps short-lived, single-use challenge records for emailed links:
// email verification and password reset.
//
// Records are keyed by the sha256 of the emailed secret and carry the owning user and an
// expiry. Consume is atomic: a record is handed out at most once. Redis records use a
// versioned binary encoding and a native TTL.
//
// The package never generates secrets and never sees them in plaintext.
package stores
