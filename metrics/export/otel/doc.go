// Package otel publishes engine metrics through an OpenTelemetry Meter.
//
// Every counter becomes an Int64ObservableCounter. The latency histogram is published as a
// cumulative bucket gauge carrying an "le" attribute plus a count gauge. One callback reads
// [goShield.Engine.MetricsSnapshot] per collection; the caller owns the MeterProvider.
package otel
