// Package metrics provides observability hooks for diff, fetch, and capture
// operations.
//
// The package follows the Null Object pattern so callers never need nil
// checks: components take a Recorder through dependency injection and default
// to NoopRecorder, whose no-op methods inline away when metrics are disabled.
//
//	handlers := server.NewDiffHandlers(..., metrics.NoopRecorder{})
//
// When the metrics endpoint is enabled, swap in the Prometheus adapter:
//
//	reg := prometheus.NewRegistry()
//	recorder := metrics.NewPrometheusRecorder(reg)
//	mux.Handle("/metrics", metrics.HTTPHandler(reg))
//
// Tests can inject a recording fake to assert on counter increments without
// scraping a registry.
package metrics
