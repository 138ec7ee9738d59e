package objectstore

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/phenobase/fieldstore/internal/errors"
	"github.com/phenobase/fieldstore/internal/observability/metrics"
)

// RetryPolicy bounds transient-failure retries for object store operations.
type RetryPolicy struct {
	MaxAttempts int           // total attempts including the first (default 5)
	BaseDelay   time.Duration // initial backoff delay, doubles per attempt (default 250ms)
	OnRetry     func(op, key string, attempt int, err error)
}

// DefaultRetryPolicy matches the documented contract: up to 5 attempts with
// exponential doubling backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 250 * time.Millisecond}
}

// retryStore decorates a Store, retrying transient failures. Auth failures,
// missing objects and missing local source files are terminal and surface
// unchanged; only storage-connection errors are retried.
type retryStore struct {
	inner   Store
	policy  RetryPolicy
	log     *slog.Logger
	metrics *metrics.ObjectStoreMetrics
}

// WithRetry wraps store with the given retry policy. Operation counts and
// latencies are recorded against m when it is non-nil.
func WithRetry(store Store, policy RetryPolicy, log *slog.Logger, m *metrics.ObjectStoreMetrics) Store {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 5
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 250 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &retryStore{inner: store, policy: policy, log: log, metrics: m}
}

func (r *retryStore) Provider() Provider { return r.inner.Provider() }

// observe records the outcome and latency of one completed operation,
// retries included.
func (r *retryStore) observe(opName string, start time.Time, err error) {
	if r.metrics == nil {
		return
	}
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}
	r.metrics.RecordOperation(string(r.Provider()), opName, status, time.Since(start).Seconds())
}

// do runs op with the retry policy. The final error keeps its category, so an
// auth failure on the last attempt is still distinguishable from a generic
// storage failure.
func (r *retryStore) do(ctx context.Context, opName, key string, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.policy.BaseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0 // attempts are bounded by count, not wall clock

	start := time.Now()
	attempt := 0
	wrapped := func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if !errors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		if attempt >= r.policy.MaxAttempts {
			return backoff.Permanent(err)
		}
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(opName, key, attempt, err)
		}
		r.log.Warn("retrying object store operation",
			"operation", opName,
			"key", key,
			"attempt", attempt,
			"error", err)
		return err
	}

	err := backoff.Retry(wrapped, backoff.WithContext(bo, ctx))
	r.observe(opName, start, err)
	return err
}

func (r *retryStore) Upload(ctx context.Context, key string, src Source, opts UploadOptions) (string, error) {
	// A path source can be reopened per attempt; an in-memory reader cannot,
	// so reader uploads get a single attempt.
	if src.Path == "" {
		var counter *countingReader
		if src.Reader != nil {
			counter = &countingReader{reader: src.Reader}
			src.Reader = counter
		}
		start := time.Now()
		url, err := r.inner.Upload(ctx, key, src, opts)
		r.observe("upload", start, err)
		if err == nil && counter != nil {
			r.recordUploadBytes(counter.n)
		}
		return url, err
	}
	var url string
	err := r.do(ctx, "upload", key, func() error {
		var err error
		url, err = r.inner.Upload(ctx, key, src, opts)
		return err
	})
	if err == nil {
		if info, statErr := os.Stat(src.Path); statErr == nil {
			r.recordUploadBytes(info.Size())
		}
	}
	return url, err
}

func (r *retryStore) recordUploadBytes(n int64) {
	if r.metrics == nil || n <= 0 {
		return
	}
	r.metrics.RecordUploadBytes(string(r.Provider()), n)
}

// countingReader tracks how many payload bytes an upload consumed.
type countingReader struct {
	reader io.Reader
	n      int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.reader.Read(p)
	c.n += int64(n)
	return n, err
}

func (r *retryStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	var rc io.ReadCloser
	err := r.do(ctx, "download", key, func() error {
		var err error
		rc, err = r.inner.Download(ctx, key)
		return err
	})
	return rc, err
}

func (r *retryStore) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := r.do(ctx, "exists", key, func() error {
		var err error
		ok, err = r.inner.Exists(ctx, key)
		return err
	})
	return ok, err
}

func (r *retryStore) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	start := time.Now()
	url, err := r.inner.PresignedURL(ctx, key, ttl)
	r.observe("presign", start, err)
	return url, err
}

func (r *retryStore) Metadata(ctx context.Context, key string) (Info, error) {
	var info Info
	err := r.do(ctx, "metadata", key, func() error {
		var err error
		info, err = r.inner.Metadata(ctx, key)
		return err
	})
	return info, err
}
