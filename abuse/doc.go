// Package abuse implements a best-effort injection heuristic over inbound payloads and an
// append-only log of what it caught.
//
// Detection is stateless per request. The log exists for alerting and never feeds back into
// a decision. Parameterized queries and output encoding in the business layer remain the
// real defense.
package abuse
