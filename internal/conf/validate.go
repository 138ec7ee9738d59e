// validate.go validation of loaded configuration settings
package conf

import (
	"github.com/phenobase/fieldstore/internal/errors"
)

// ValidateSettings checks the loaded settings for configurations that cannot work.
func ValidateSettings(settings *Settings) error {
	if !settings.Output.SQLite.Enabled && !settings.Output.MySQL.Enabled {
		return errors.Newf("no database backend enabled, enable output.sqlite or output.mysql").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if settings.Output.SQLite.Enabled && settings.Output.SQLite.Path == "" {
		return errors.Newf("output.sqlite.path must be set when SQLite is enabled").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if settings.Main.Metrics.Enabled && settings.Main.Metrics.Listen == "" {
		return errors.Newf("main.metrics.listen must be set when the metrics endpoint is enabled").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	switch settings.Storage.Provider {
	case "fs", "memory":
	case "s3":
		if settings.Storage.S3.Bucket == "" {
			return errors.Newf("storage.s3.bucket is required for the s3 provider").
				Component("conf").
				Category(errors.CategoryConfiguration).
				Build()
		}
	default:
		return errors.Newf("unknown storage provider %q", settings.Storage.Provider).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if settings.Storage.MaxAttempts <= 0 {
		settings.Storage.MaxAttempts = 5
	}
	if settings.Storage.RetryBaseMS <= 0 {
		settings.Storage.RetryBaseMS = 250
	}
	if settings.Ingest.UploadWorkers <= 0 {
		settings.Ingest.UploadWorkers = 4
	}

	return nil
}
