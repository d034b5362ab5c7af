// Package otel publishes goGate engine counters as OpenTelemetry metrics.
//
// [NewExporter] registers one Int64ObservableCounter per flow (password
// reset, token, login, refresh, authorize, store) with the engine counter
// carried in the "outcome" attribute. Authorization latency is published as
// cumulative bucket gauges keyed by "le". A single callback reads
// [goGate.Engine.MetricsSnapshot] on each collection cycle.
//
// [LogExporter] is an sdkmetric push exporter writing each collection to a
// zerolog logger. The server mounts it behind metrics.otel.
//
// Callers own the MeterProvider. The package never mutates engine state.
package otel
