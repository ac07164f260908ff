// Package otel binds engine metrics to an OpenTelemetry Meter.
//
// [NewOTelExporter] registers an Int64ObservableCounter for each engine counter
// and, per histogram, one bucket gauge carrying an "le" attribute plus a count
// gauge. A single callback reads [weeverytrip.Engine.MetricsSnapshot] on each
// collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
