// model.go: relational models for records and the hierarchy dimension tables.
package datastore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Experiment is the top level of the hierarchy.
type Experiment struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"size:191;uniqueIndex;not null"`
}

// Season belongs to an experiment.
type Season struct {
	ID           uint   `gorm:"primaryKey"`
	Name         string `gorm:"size:191;uniqueIndex:idx_seasons_name_experiment;not null"`
	ExperimentID uint   `gorm:"uniqueIndex:idx_seasons_name_experiment;index;not null"`
}

// Site belongs to an experiment.
type Site struct {
	ID           uint   `gorm:"primaryKey"`
	Name         string `gorm:"size:191;uniqueIndex:idx_sites_name_experiment;not null"`
	ExperimentID uint   `gorm:"uniqueIndex:idx_sites_name_experiment;index;not null"`
}

// Entity is a producing object: a sensor, trait, model, procedure or script.
// Entity rows are never auto-created by the resolver.
type Entity struct {
	ID   uint   `gorm:"primaryKey"`
	Kind string `gorm:"size:32;uniqueIndex:idx_entities_kind_name;not null"`
	Name string `gorm:"size:191;uniqueIndex:idx_entities_kind_name;not null"`
}

// Dataset groups co-located records and scopes binary payload storage keys.
// Dataset rows are created on demand during resolution.
type Dataset struct {
	ID       uint   `gorm:"primaryKey"`
	Name     string `gorm:"size:191;uniqueIndex;not null"`
	EntityID uint   `gorm:"index;not null"`
}

// EntityExperiment links a producing entity to an experiment. Associations
// are created explicitly by callers, never invented by the resolver.
type EntityExperiment struct {
	ID           uint `gorm:"primaryKey"`
	EntityID     uint `gorm:"uniqueIndex:idx_entity_experiments;not null"`
	ExperimentID uint `gorm:"uniqueIndex:idx_entity_experiments;not null"`
}

// ValidCombination is one legal (experiment, season, site, dataset, entity)
// tuple. The table is a materialized dimension view: it is rebuilt explicitly
// and in full by RefreshValidCombinations before any write path depends on it.
type ValidCombination struct {
	ID             uint   `gorm:"primaryKey"`
	ExperimentID   uint   `gorm:"uniqueIndex:idx_valid_combinations;not null"`
	SeasonID       uint   `gorm:"uniqueIndex:idx_valid_combinations;not null"`
	SiteID         uint   `gorm:"uniqueIndex:idx_valid_combinations;not null"`
	DatasetID      uint   `gorm:"uniqueIndex:idx_valid_combinations;not null"`
	EntityID       uint   `gorm:"uniqueIndex:idx_valid_combinations;not null"`
	ExperimentName string `gorm:"size:191"`
	SeasonName     string `gorm:"size:191"`
	SiteName       string `gorm:"size:191"`
	DatasetName    string `gorm:"size:191"`
	EntityName     string `gorm:"size:191"`
}

// HierarchyRef carries the fully resolved hierarchy coordinates of a record.
type HierarchyRef struct {
	ExperimentID   uint
	ExperimentName string
	SeasonID       uint
	SeasonName     string
	SiteID         uint
	SiteName       string
	DatasetID      uint
	DatasetName    string
	EntityID       uint
	EntityName     string
}

// Record is one observation row in the append-only record store. The
// composite unique index implements the deduplication tuple: re-inserting an
// identical tuple is absorbed by the store rather than duplicated or errored.
// Metadata participates in the tuple through a canonical-JSON hash.
type Record struct {
	ID   uint   `gorm:"primaryKey"`
	Kind string `gorm:"size:32;index;uniqueIndex:idx_records_identity;not null"`

	Timestamp      time.Time `gorm:"index;uniqueIndex:idx_records_identity;not null"`
	CollectionDate string    `gorm:"size:10;index;uniqueIndex:idx_records_identity;not null"`

	DatasetID   uint   `gorm:"index;uniqueIndex:idx_records_identity;not null"`
	DatasetName string `gorm:"size:191;index;uniqueIndex:idx_records_identity;not null"`
	EntityID    uint   `gorm:"index;uniqueIndex:idx_records_identity;not null"`
	EntityName  string `gorm:"size:191;index;uniqueIndex:idx_records_identity;not null"`

	ExperimentID uint `gorm:"index"`
	SeasonID     uint `gorm:"index"`
	SiteID       uint `gorm:"index"`

	PlotNumber *int
	PlotRow    *int
	PlotColumn *int

	Payload  datatypes.JSON
	Metadata datatypes.JSON
	// MetadataHash stands in for the metadata map inside the unique index.
	MetadataHash string `gorm:"size:64;uniqueIndex:idx_records_identity;not null"`

	// FileKey is the durable object storage key, written exactly once at
	// ingestion time. Empty for records without a binary payload.
	FileKey string `gorm:"size:512"`

	CreatedAt time.Time
}

// RecordView is one row of the derived record_view, which denormalizes raw
// record rows with their hierarchy display names. Plain SQL views are
// computed at read time, so reads reflect inserts without a manual refresh.
type RecordView struct {
	ID             uint           `json:"id"`
	Kind           string         `json:"kind"`
	Timestamp      time.Time      `json:"timestamp"`
	CollectionDate string         `json:"collection_date"`
	DatasetID      uint           `json:"dataset_id"`
	DatasetName    string         `json:"dataset_name"`
	EntityID       uint           `json:"entity_id"`
	EntityName     string         `json:"entity_name"`
	ExperimentID   uint           `json:"experiment_id"`
	ExperimentName string         `json:"experiment_name"`
	SeasonID       uint           `json:"season_id"`
	SeasonName     string         `json:"season_name"`
	SiteID         uint           `json:"site_id"`
	SiteName       string         `json:"site_name"`
	PlotNumber     *int           `json:"plot_number,omitempty"`
	PlotRow        *int           `json:"plot_row,omitempty"`
	PlotColumn     *int           `json:"plot_column,omitempty"`
	Payload        datatypes.JSON `json:"payload,omitempty"`
	Metadata       datatypes.JSON `json:"metadata,omitempty"`
	FileKey        string         `json:"file_key,omitempty"`
}

// TableName maps RecordView onto the derived view.
func (RecordView) TableName() string { return "record_view" }

// HashMetadata computes the canonical hash standing in for the metadata map
// in the uniqueness tuple. encoding/json sorts map keys, giving a stable
// serialization; an empty map hashes to the empty string so that "no
// metadata" compares equal regardless of nil-ness.
func HashMetadata(metadata map[string]any) (string, error) {
	if len(metadata) == 0 {
		return "", nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
