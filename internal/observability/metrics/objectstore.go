// Package metrics provides object store metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ObjectStoreMetrics contains Prometheus metrics for object storage
// operations.
type ObjectStoreMetrics struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	retriesTotal      *prometheus.CounterVec
	uploadBytesTotal  *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewObjectStoreMetrics creates and registers new object store metrics.
func NewObjectStoreMetrics(registry *prometheus.Registry) (*ObjectStoreMetrics, error) {
	m := &ObjectStoreMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *ObjectStoreMetrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objectstore_operations_total",
			Help: "Total number of object store operations",
		},
		[]string{"provider", "operation", "status"}, // operation: upload, download, exists, presign
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "objectstore_operation_duration_seconds",
			Help:    "Time taken for object store operations",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15),
		},
		[]string{"provider", "operation"},
	)

	m.retriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objectstore_retries_total",
			Help: "Total number of retried object store operations",
		},
		[]string{"provider", "operation"},
	)

	m.uploadBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objectstore_upload_bytes_total",
			Help: "Total bytes uploaded to object storage",
		},
		[]string{"provider"},
	)

	m.collectors = []prometheus.Collector{
		m.operationsTotal,
		m.operationDuration,
		m.retriesTotal,
		m.uploadBytesTotal,
	}
}

// Describe implements the prometheus.Collector interface.
func (m *ObjectStoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *ObjectStoreMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordOperation records an object store operation.
func (m *ObjectStoreMetrics) RecordOperation(provider, operation, status string, duration float64) {
	m.operationsTotal.WithLabelValues(provider, operation, status).Inc()
	m.operationDuration.WithLabelValues(provider, operation).Observe(duration)
}

// RecordRetry records one retry of an object store operation.
func (m *ObjectStoreMetrics) RecordRetry(provider, operation string) {
	m.retriesTotal.WithLabelValues(provider, operation).Inc()
}

// RecordUploadBytes adds uploaded bytes to the per-provider counter.
func (m *ObjectStoreMetrics) RecordUploadBytes(provider string, bytes int64) {
	m.uploadBytesTotal.WithLabelValues(provider).Add(float64(bytes))
}
