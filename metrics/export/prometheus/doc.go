// Package prometheus exposes portal engine counters through a
// client_golang Collector.
//
// [Collector] reads [portal.Engine.MetricsSnapshot] on every scrape and
// publishes dppd_*_total counters plus the dppd_authorize_latency_seconds
// histogram. [NewRegistry] wraps it in a private registry; callers mount
// [Handler] wherever they serve metrics.
package prometheus
