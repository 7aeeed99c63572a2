// Package metric provides Prometheus metrics for settree.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: Prometheus registry and HTTP handler
//   - settings.go: load pass, dispatch and commit metrics
//   - collector.go: store statistics collected on scrape
//
// Metrics are exposed at /metrics in Prometheus format by the watch
// command.
package metric
