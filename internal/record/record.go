// Package record defines the observation record model shared by all six
// record kinds, with a single generic type parameterized by Kind instead of
// per-kind copies.
package record

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/phenobase/fieldstore/internal/errors"
)

// DateLayout is the wire format of collection dates.
const DateLayout = "2006-01-02"

// Record represents a single observation data point before and after ingestion.
type Record struct {
	ID   uint `json:"id,omitempty"` // assigned at insert time, never by the caller
	Kind Kind `json:"kind"`

	Timestamp      time.Time `json:"timestamp"`                 // required event time
	CollectionDate string    `json:"collection_date,omitempty"` // derived from Timestamp when empty

	EntityName  string `json:"entity_name"`  // producing sensor/trait/model/procedure/script
	DatasetName string `json:"dataset_name"` // owning dataset, also scopes storage keys

	ExperimentName string `json:"experiment_name,omitempty"`
	SeasonName     string `json:"season_name,omitempty"`
	SiteName       string `json:"site_name,omitempty"`

	// Plot coordinates, only meaningful for plot-scoped kinds (sensor, trait).
	PlotNumber *int `json:"plot_number,omitempty"`
	PlotRow    *int `json:"plot_row,omitempty"`
	PlotColumn *int `json:"plot_column,omitempty"`

	Payload  map[string]any `json:"payload,omitempty"`  // free-form observation data
	Metadata map[string]any `json:"metadata,omitempty"` // record-level annotations

	// SourcePath points at a local file before ingestion. FileKey holds the
	// durable storage key after ingestion; it is written exactly once and the
	// source path is not retained.
	SourcePath string `json:"source_path,omitempty"`
	FileKey    string `json:"file_key,omitempty"`
}

// Normalize fills derived fields: the collection date defaults to the date
// component of the timestamp.
func (r *Record) Normalize() {
	if r.CollectionDate == "" && !r.Timestamp.IsZero() {
		r.CollectionDate = r.Timestamp.Format(DateLayout)
	}
}

// Validate checks the record for conditions that must fail fast, before any
// network I/O is attempted.
func (r *Record) Validate() error {
	if !r.Kind.Valid() {
		return validationErr("unknown record kind %q", string(r.Kind))
	}
	if r.Timestamp.IsZero() {
		return validationErr("record timestamp is required")
	}
	if r.EntityName == "" {
		return validationErr("record entity name is required")
	}
	if r.DatasetName == "" {
		return validationErr("record dataset name is required")
	}
	if r.ExperimentName == "" && r.SeasonName == "" && r.SiteName == "" {
		return validationErr("at least one of experiment, season or site is required")
	}
	if len(r.Payload) == 0 && r.SourcePath == "" && r.FileKey == "" {
		return validationErr("record carries neither payload nor file")
	}
	if !r.Kind.PlotScoped() && (r.PlotNumber != nil || r.PlotRow != nil || r.PlotColumn != nil) {
		return validationErr("plot coordinates are only valid on sensor and trait records")
	}
	if r.CollectionDate != "" {
		if _, err := time.Parse(DateLayout, r.CollectionDate); err != nil {
			return validationErr("invalid collection date %q", r.CollectionDate)
		}
	}
	return nil
}

// HasSourceFile reports whether the record still references a local file that
// must be offloaded to object storage during ingestion.
func (r *Record) HasSourceFile() bool {
	return r.SourcePath != "" && r.FileKey == ""
}

// StorageKey builds the deterministic, immutable object storage key for the
// record's binary payload:
//
//	{kind}_data/{experiment}/{entity}/{dataset}/{collection_date}/{site}/{season}/{epoch_millis}{ext}
//
// ext is taken from the source file's suffix, including the leading dot.
func (r *Record) StorageKey() string {
	ext := filepath.Ext(r.SourcePath)
	return fmt.Sprintf("%s/%s/%s/%s/%s/%s/%s/%d%s",
		r.Kind.StoragePrefix(),
		r.ExperimentName,
		r.EntityName,
		r.DatasetName,
		r.CollectionDate,
		r.SiteName,
		r.SeasonName,
		r.Timestamp.UnixMilli(),
		ext,
	)
}

// StorageTags builds the object metadata tag map attached on every file
// upload, required for out-of-band auditing.
func (r *Record) StorageTags() map[string]string {
	return map[string]string{
		"entity":          r.EntityName,
		"dataset":         r.DatasetName,
		"experiment":      r.ExperimentName,
		"site":            r.SiteName,
		"season":          r.SeasonName,
		"collection_date": r.CollectionDate,
		"timestamp":       r.Timestamp.Format(time.RFC3339),
	}
}

func validationErr(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("record").
		Category(errors.CategoryValidation).
		Build()
}
