// Package prometheus exposes goGate engine counters through
// prometheus/client_golang.
//
// [Collector] implements prometheus.Collector and reads
// [goGate.Engine.MetricsSnapshot] on every scrape. Counter names are
// gogate_*_total; the authorization latency histogram is
// gogate_authorize_latency_seconds.
//
// # What this package must NOT do
//
//   - Register into the global Prometheus registry. Callers register the
//     Collector or mount [Collector.Handler].
//   - Mutate engine state.
package prometheus
