// Package metrics provides ingestion metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// IngestMetrics contains Prometheus metrics for the ingestion pipeline.
type IngestMetrics struct {
	registry *prometheus.Registry

	// Batch metrics
	batchesTotal  *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	batchSizeHist *prometheus.HistogramVec

	// Record metrics
	recordsTotal *prometheus.CounterVec

	// Resolution metrics
	resolutionsTotal   *prometheus.CounterVec
	resolutionDuration prometheus.Histogram

	// Search metrics
	searchesTotal      *prometheus.CounterVec
	searchRowsStreamed *prometheus.HistogramVec

	collectors []prometheus.Collector
}

// NewIngestMetrics creates and registers new ingestion metrics.
func NewIngestMetrics(registry *prometheus.Registry) (*IngestMetrics, error) {
	m := &IngestMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *IngestMetrics) initMetrics() {
	m.batchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_batches_total",
			Help: "Total number of ingestion batches",
		},
		[]string{"kind", "status"}, // status: success, error
	)

	m.batchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_batch_duration_seconds",
			Help:    "Time taken to ingest a batch end to end",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15),
		},
		[]string{"kind"},
	)

	m.batchSizeHist = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_batch_size_records",
			Help:    "Number of records per ingestion batch",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		},
		[]string{"kind"},
	)

	m.recordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_records_total",
			Help: "Total number of records processed",
		},
		[]string{"kind", "status"}, // status: success, duplicate, error
	)

	m.resolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_hierarchy_resolutions_total",
			Help: "Total number of hierarchy resolutions",
		},
		[]string{"status"},
	)

	m.resolutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_hierarchy_resolution_duration_seconds",
			Help:    "Time taken to resolve a hierarchy tuple",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15),
		},
	)

	m.searchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_queries_total",
			Help: "Total number of streamed search queries",
		},
		[]string{"status"},
	)

	m.searchRowsStreamed = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_rows_streamed",
			Help:    "Number of rows streamed per search query",
			Buckets: []float64{1, 10, 100, 1000, 10000, 100000},
		},
		[]string{"kind"},
	)

	m.collectors = []prometheus.Collector{
		m.batchesTotal,
		m.batchDuration,
		m.batchSizeHist,
		m.recordsTotal,
		m.resolutionsTotal,
		m.resolutionDuration,
		m.searchesTotal,
		m.searchRowsStreamed,
	}
}

// Describe implements the prometheus.Collector interface.
func (m *IngestMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *IngestMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordBatch records a completed ingestion batch.
func (m *IngestMetrics) RecordBatch(kind, status string, size int, duration float64) {
	m.batchesTotal.WithLabelValues(kind, status).Inc()
	m.batchDuration.WithLabelValues(kind).Observe(duration)
	m.batchSizeHist.WithLabelValues(kind).Observe(float64(size))
}

// RecordRecords adds processed records to the per-kind counter.
func (m *IngestMetrics) RecordRecords(kind, status string, count int) {
	m.recordsTotal.WithLabelValues(kind, status).Add(float64(count))
}

// RecordResolution records a hierarchy resolution.
func (m *IngestMetrics) RecordResolution(status string, duration float64) {
	m.resolutionsTotal.WithLabelValues(status).Inc()
	m.resolutionDuration.Observe(duration)
}

// RecordSearch records a streamed search query.
func (m *IngestMetrics) RecordSearch(kind, status string, rows int) {
	m.searchesTotal.WithLabelValues(status).Inc()
	if status == StatusSuccess {
		m.searchRowsStreamed.WithLabelValues(kind).Observe(float64(rows))
	}
}
