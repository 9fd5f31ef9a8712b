// Package otel binds portal engine counters to OpenTelemetry observable
// instruments.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and
// a gauge per latency bucket. A single callback reads
// [portal.Engine.MetricsSnapshot] on each collection. Callers own the
// MeterProvider.
package otel
