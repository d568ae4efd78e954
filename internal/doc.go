// Package internal holds helpers private to goShield, chiefly secure random generation.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher plus Sink implementations)
//   - clientip: client address resolution behind optional proxies
//   - security: the configuration posture report
//   - stores: single-use challenge records for emailed links
package internal
