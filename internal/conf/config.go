// config.go: settings struct and functions to load and save the fieldstore configuration.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yaml
var configFiles embed.FS

// LogConfig contains settings for a rotating log file.
type LogConfig struct {
	Enabled    bool   // true to enable file logging
	Path       string // path to the log file
	MaxSizeMB  int    // rotate after this many megabytes
	MaxBackups int    // retained rotated files
	MaxAgeDays int    // retained age in days
}

// MetricsConfig contains settings for the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   // true to serve /metrics over HTTP
	Listen  string // listen address, e.g. "localhost:9090"
}

// MainSettings contains general application settings.
type MainSettings struct {
	Name    string        // node name, used to identify the ingesting node
	Log     LogConfig     // log file settings
	Metrics MetricsConfig // metrics endpoint settings
}

// SQLiteSettings contains settings for the SQLite database backend.
type SQLiteSettings struct {
	Enabled bool
	Path    string // path to the database file
}

// MySQLSettings contains settings for the MySQL database backend.
type MySQLSettings struct {
	Enabled  bool
	Username string
	Password string
	Database string
	Host     string
	Port     string
}

// OutputSettings selects and configures the relational store.
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// FilesystemStorage contains settings for the local filesystem object store.
type FilesystemStorage struct {
	Root    string // root directory for stored objects
	BaseURL string // optional URL prefix reported for stored objects
}

// S3Storage contains settings for the S3-compatible object store.
type S3Storage struct {
	Bucket          string
	Region          string
	Endpoint        string // optional, enables MinIO style deployments
	PathStyle       bool
	AccessKeyID     string // optional, falls back to the default credentials chain
	SecretAccessKey string
}

// StorageSettings selects and configures the object store backend.
type StorageSettings struct {
	Provider      string // "fs", "s3" or "memory"
	MaxAttempts   int    // retry attempt cap for transient failures
	RetryBaseMS   int    // initial backoff delay in milliseconds, doubles per attempt
	Filesystem    FilesystemStorage
	S3            S3Storage
	PresignExpiry time.Duration // TTL for presigned download URLs
}

// IngestSettings configures the ingestion pipeline.
type IngestSettings struct {
	UploadWorkers int // concurrent payload uploads per batch
}

// Settings contains all application settings
type Settings struct {
	Debug bool // true to enable debug logging

	Main    MainSettings
	Output  OutputSettings
	Storage StorageSettings
	Ingest  IngestSettings
}

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("FIELDSTORE")
	viper.AutomaticEnv()

	// function defined in defaults.go
	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create config with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig creates a default config file and writes it to the default config path
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")
	defaultConfig := getDefaultConfig()

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}
	return string(data)
}

// GetDefaultConfigPaths returns the search paths for the configuration file,
// in priority order: working directory first, then the user config directory.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}
	if userDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(userDir, "fieldstore"))
	}
	return paths, nil
}
