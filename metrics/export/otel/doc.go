// Package otel publishes engine metrics through an OpenTelemetry Meter.
//
// Engine counters are grouped into attribute-keyed families
// (gosession_requests_total{state}, gosession_session_rejections_total{reason},
// gosession_cookie_writes_total{kind}, gosession_profile_syncs_total{result}).
// Refresh latency is exported as cumulative bucket counts keyed by "le".
// Dropped audit events carry their event_type. A single callback reads
// [goSession.Engine.MetricsSnapshot] on each collection. Callers own the
// MeterProvider.
package otel
