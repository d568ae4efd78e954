// Package httpapi mounts the goShield flows on a chi router.
//
// Every route runs a middleware chain built from the engine: hygiene, the route's rate class,
// the abuse scan and, on protected routes, authentication and CSRF. Handlers decode the
// buffered body, call one engine operation and answer with the JSON envelope.
//
// In front of the chains sits a coarse per-IP token bucket (golang.org/x/time/rate) that
// sheds floods before any store is touched. Requests are counted into Prometheus series
// exposed with the engine counters on /metrics.
package httpapi
