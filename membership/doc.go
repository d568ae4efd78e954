// Package membership enforces the capacity-limited role model of an account and resolves
// what each member may do.
//
// # Invariants
//
// An account holds at most Capacity members: one owner, at most one admin and at most
// MaxAuxiliaries auxiliaries. The owner entry is never removed. Every mutation goes through
// Store.Update so the cardinality check and the write are one step.
//
// # What this package must NOT do
//
//   - Authenticate users or read HTTP requests.
//   - Grant a member more than the defaults of its role.
package membership
