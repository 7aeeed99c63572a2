// Package metric provides Prometheus metrics for settree.
package metric

import "github.com/prometheus/client_golang/prometheus"

// StoreStats is a point-in-time view of a settings store.
type StoreStats struct {
	Keys  int
	Bytes int64
}

// Collector reports store statistics on every scrape.
type Collector struct {
	backend string
	stats   func() StoreStats

	keys  *prometheus.Desc
	bytes *prometheus.Desc
}

// NewCollector creates a collector reading statistics from stats.
func NewCollector(backend string, stats func() StoreStats) *Collector {
	labels := prometheus.Labels{"backend": backend}
	return &Collector{
		backend: backend,
		stats:   stats,
		keys: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "store", "keys"),
			"Number of live settings keys.",
			nil, labels),
		bytes: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "store", "value_bytes"),
			"Total size of live settings values.",
			nil, labels),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.keys
	ch <- c.bytes
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.stats()
	ch <- prometheus.MustNewConstMetric(c.keys, prometheus.GaugeValue, float64(st.Keys))
	ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.GaugeValue, float64(st.Bytes))
}
