// Package prometheus exposes engine metrics to Prometheus.
//
// [NewPrometheusExporter] wraps a [weeverytrip.Engine] in a [Collector] held by
// a private registry and serves it through [PrometheusExporter.Handler].
// [PrometheusExporter.Render] produces the same series as plain exposition text
// without going through client_golang. Counter names are prefixed
// weeverytrip_*_total; the single histogram is
// weeverytrip_refresh_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry. Callers mount the Handler
//     or register [PrometheusExporter.Collector] themselves.
//   - Mutate engine state.
package prometheus
