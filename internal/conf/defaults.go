// defaults.go default values for configuration settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig sets the default values for the configuration parameters.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	// Main settings
	viper.SetDefault("main.name", "FieldStore")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "fieldstore.log")
	viper.SetDefault("main.log.maxsizemb", 100)
	viper.SetDefault("main.log.maxbackups", 3)
	viper.SetDefault("main.log.maxagedays", 28)
	viper.SetDefault("main.metrics.enabled", false)
	viper.SetDefault("main.metrics.listen", "localhost:9090")

	// Relational store
	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "fieldstore.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "fieldstore")
	viper.SetDefault("output.mysql.password", "")
	viper.SetDefault("output.mysql.database", "fieldstore")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	// Object store
	viper.SetDefault("storage.provider", "fs")
	viper.SetDefault("storage.maxattempts", 5)
	viper.SetDefault("storage.retrybasems", 250)
	viper.SetDefault("storage.presignexpiry", 15*time.Minute)
	viper.SetDefault("storage.filesystem.root", "fieldstore-data")
	viper.SetDefault("storage.filesystem.baseurl", "")
	viper.SetDefault("storage.s3.bucket", "")
	viper.SetDefault("storage.s3.region", "us-east-1")
	viper.SetDefault("storage.s3.endpoint", "")
	viper.SetDefault("storage.s3.pathstyle", false)

	// Ingestion
	viper.SetDefault("ingest.uploadworkers", 4)
}
