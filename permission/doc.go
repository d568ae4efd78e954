// Package permission defines the dashboard capabilities and a fixed-size bitmask over them.
//
// # Mask layout
//
// Capabilities are registered in a fixed order and each owns one bit of a Mask64. The order
// is part of the persisted format of overrides and must only ever be appended to.
//
// # What this package must NOT do
//
//   - Know about roles or accounts. Role defaults live in package membership.
//   - Access Redis, databases, or the network.
package permission
