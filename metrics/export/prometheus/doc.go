// Package prometheus exposes engine metrics as a prometheus.Collector.
//
// [NewPrometheusExporter] reads [goSession.Engine.MetricsSnapshot] on every
// scrape. Counters are named gosession_*_total and the refresh latency is the
// gosession_refresh_latency_seconds histogram. The exporter can be registered
// on any registry or served standalone through Handler.
package prometheus
