// Package security derives the security posture report of a configured engine.
//
// # What this package must NOT do
//
//   - Import goShield or read live state; it works on plain configuration values.
package security
