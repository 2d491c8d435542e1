// Package otel publishes authsession metrics through an OpenTelemetry Meter.
//
// [NewOTelExporter] registers one Int64ObservableCounter per session counter
// and one Int64ObservableGauge per cumulative latency bucket. A single
// callback reads the session snapshot on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate session state.
package otel
