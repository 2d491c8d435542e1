// Package prometheus exposes authsession metrics to Prometheus.
//
// [PrometheusExporter] is a [prometheus.Collector]. It reads
// [authsession.Session.MetricsSnapshot] on every scrape and reports
// authsession_*_total counters plus the
// authsession_request_latency_seconds histogram. Register it on your own
// registry, or mount [PrometheusExporter.Handler] which serves a private one.
//
// # What this package must NOT do
//
//   - Register in the global Prometheus registry.
//   - Mutate session state.
package prometheus
