package objectstore

import (
	"context"
	"time"

	"github.com/phenobase/fieldstore/internal/conf"
	"github.com/phenobase/fieldstore/internal/errors"
	"github.com/phenobase/fieldstore/internal/logging"
	"github.com/phenobase/fieldstore/internal/observability/metrics"
)

// New constructs the configured object store backend wrapped with the
// configured retry policy. Operations and retries are recorded against m
// when it is non-nil. The adapter is passed to consumers explicitly; there
// is no process-wide provider singleton.
func New(ctx context.Context, settings *conf.Settings, m *metrics.ObjectStoreMetrics) (Store, error) {
	var (
		inner Store
		err   error
	)
	switch Provider(settings.Storage.Provider) {
	case ProviderFilesystem:
		inner, err = NewFilesystem(settings.Storage.Filesystem.Root, settings.Storage.Filesystem.BaseURL)
	case ProviderS3:
		inner, err = NewS3(ctx, S3Config{
			Bucket:          settings.Storage.S3.Bucket,
			Region:          settings.Storage.S3.Region,
			Endpoint:        settings.Storage.S3.Endpoint,
			PathStyle:       settings.Storage.S3.PathStyle,
			AccessKeyID:     settings.Storage.S3.AccessKeyID,
			SecretAccessKey: settings.Storage.S3.SecretAccessKey,
		})
	case ProviderMemory:
		inner = NewMemory()
	default:
		return nil, errors.Newf("unknown storage provider %q", settings.Storage.Provider).
			Component("objectstore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err != nil {
		return nil, err
	}

	policy := RetryPolicy{
		MaxAttempts: settings.Storage.MaxAttempts,
		BaseDelay:   time.Duration(settings.Storage.RetryBaseMS) * time.Millisecond,
	}
	if m != nil {
		provider := string(inner.Provider())
		policy.OnRetry = func(op, key string, attempt int, err error) {
			m.RecordRetry(provider, op)
		}
	}
	return WithRetry(inner, policy, logging.ForService("objectstore"), m), nil
}
