// Package metrics provides constants used across metric definitions.
package metrics

const (
	// BucketStart1ms is the starting bucket for 1ms histograms (1ms to ~32s range).
	BucketStart1ms = 0.001
	// BucketFactor2 doubles each successive histogram bucket.
	BucketFactor2 = 2.0
	// BucketCount15 gives 15 exponential buckets.
	BucketCount15 = 15

	// StatusSuccess marks a successful operation.
	StatusSuccess = "success"
	// StatusError marks a failed operation.
	StatusError = "error"
	// StatusDuplicate marks a record absorbed by the deduplication index.
	StatusDuplicate = "duplicate"
)
