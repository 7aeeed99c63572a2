// Package metric provides Prometheus metrics for settree.
package metric

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "settree"

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// Settings engine metrics
	Settings *Settings

	// Storage metrics
	WALWriteBytes         prometheus.Counter
	SnapshotWriteDuration prometheus.Histogram
	StoreOperations       *prometheus.CounterVec
}

// NewRegistry creates a registry with Go runtime and process collectors
// plus all settree metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		registry: reg,
		Settings: NewSettings(reg),
		WALWriteBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "wal_write_bytes_total",
			Help:      "Bytes appended to the settings log.",
		}),
		SnapshotWriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "snapshot_write_duration_seconds",
			Help:      "Time spent writing settings log snapshots.",
			Buckets:   prometheus.DefBuckets,
		}),
		StoreOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "store_operations_total",
			Help:      "Store operations by backend, operation and result.",
		}, []string{"backend", "op", "result"}),
	}

	reg.MustRegister(r.WALWriteBytes, r.SnapshotWriteDuration, r.StoreOperations)
	return r
}

var (
	globalOnce     sync.Once
	globalRegistry *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		globalRegistry = NewRegistry()
	})
	return globalRegistry
}

// Handler returns an HTTP handler for the global registry.
func Handler() http.Handler {
	return Global().Handler()
}

// Handler returns an HTTP handler serving this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Prometheus returns the underlying registry for components that register
// their own collectors.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.registry
}

// AddWALWriteBytes records bytes appended to the log.
func (r *Registry) AddWALWriteBytes(n int) {
	if r == nil {
		return
	}
	r.WALWriteBytes.Add(float64(n))
}

// ObserveSnapshotWriteTime records the duration of a snapshot write in seconds.
func (r *Registry) ObserveSnapshotWriteTime(seconds float64) {
	if r == nil {
		return
	}
	r.SnapshotWriteDuration.Observe(seconds)
}

// RecordStoreOp counts a store operation.
func (r *Registry) RecordStoreOp(backend, op string, err error) {
	if r == nil {
		return
	}
	r.StoreOperations.WithLabelValues(backend, op, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
