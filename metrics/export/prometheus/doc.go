// Package prometheus adapts engine metrics to a prometheus.Collector.
//
// The collector reads [goShield.Engine.MetricsSnapshot] on every scrape and emits constant
// metrics, so it never registers anything globally. Counters are named goshield_*_total and
// the authentication latency is the goshield_authenticate_latency_seconds histogram.
package prometheus
