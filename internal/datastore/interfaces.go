// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"context"

	"gorm.io/gorm"

	"github.com/phenobase/fieldstore/internal/conf"
)

// Interface abstracts the underlying database implementation and defines the
// operations the ingestion and query layers depend on.
type Interface interface {
	Open() error
	Close() error

	// Record store
	InsertRecords(ctx context.Context, rows []*Record) ([]uint, error)
	FindRecordID(ctx context.Context, row *Record) (uint, error)
	GetRecord(ctx context.Context, id uint) (*Record, error)
	GetRecordFromView(ctx context.Context, id uint) (*RecordView, error)
	UpdateRecordFields(ctx context.Context, id uint, payload, metadata map[string]any) error
	DeleteRecord(ctx context.Context, id uint) error
	RepointRecord(ctx context.Context, id uint, ref HierarchyRef) error

	// Dimension tables
	GetExperiment(ctx context.Context, name string) (*Experiment, error)
	CreateExperiment(ctx context.Context, name string) (*Experiment, error)
	GetSeason(ctx context.Context, name string, experimentID uint) (*Season, error)
	CreateSeason(ctx context.Context, name string, experimentID uint) (*Season, error)
	GetSite(ctx context.Context, name string, experimentID uint) (*Site, error)
	CreateSite(ctx context.Context, name string, experimentID uint) (*Site, error)
	GetEntity(ctx context.Context, kind, name string) (*Entity, error)
	CreateEntity(ctx context.Context, kind, name string) (*Entity, error)
	GetOrCreateDataset(ctx context.Context, name string, entityID uint) (*Dataset, error)
	LinkEntityToExperiment(ctx context.Context, entityID, experimentID uint) error

	// Valid-combinations dimension view
	RefreshValidCombinations(ctx context.Context) error
	ValidCombinations(ctx context.Context, filter CombinationFilter) ([]ValidCombination, error)

	// Streaming reads over the derived record view
	OpenRecordCursor(ctx context.Context, query RecordQuery) (*RecordCursor, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new datastore instance based on the provided configuration.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		return nil
	}
}
