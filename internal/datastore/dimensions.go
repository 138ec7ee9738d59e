// dimensions.go: hierarchy dimension tables and the materialized
// valid-combinations view.
package datastore

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/phenobase/fieldstore/internal/errors"
)

// GetExperiment looks up an experiment by name.
func (ds *DataStore) GetExperiment(ctx context.Context, name string) (*Experiment, error) {
	var row Experiment
	if err := ds.DB.WithContext(ctx).Where("name = ?", name).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundError("experiment", name)
		}
		return nil, dbError(err, "get_experiment", "name", name)
	}
	return &row, nil
}

// CreateExperiment creates an experiment, returning the existing row when the
// name is already registered.
func (ds *DataStore) CreateExperiment(ctx context.Context, name string) (*Experiment, error) {
	row := Experiment{Name: name}
	err := ds.DB.WithContext(ctx).
		Where(Experiment{Name: name}).
		FirstOrCreate(&row).Error
	if err != nil {
		return nil, dbError(err, "create_experiment", "name", name)
	}
	return &row, nil
}

// GetSeason looks up a season by name within an experiment.
func (ds *DataStore) GetSeason(ctx context.Context, name string, experimentID uint) (*Season, error) {
	var row Season
	err := ds.DB.WithContext(ctx).
		Where("name = ? AND experiment_id = ?", name, experimentID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundError("season", name)
		}
		return nil, dbError(err, "get_season", "name", name)
	}
	return &row, nil
}

// CreateSeason creates a season under an experiment, returning the existing
// row when the pair is already registered.
func (ds *DataStore) CreateSeason(ctx context.Context, name string, experimentID uint) (*Season, error) {
	row := Season{Name: name, ExperimentID: experimentID}
	err := ds.DB.WithContext(ctx).
		Where(Season{Name: name, ExperimentID: experimentID}).
		FirstOrCreate(&row).Error
	if err != nil {
		return nil, dbError(err, "create_season", "name", name)
	}
	return &row, nil
}

// GetSite looks up a site by name within an experiment.
func (ds *DataStore) GetSite(ctx context.Context, name string, experimentID uint) (*Site, error) {
	var row Site
	err := ds.DB.WithContext(ctx).
		Where("name = ? AND experiment_id = ?", name, experimentID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundError("site", name)
		}
		return nil, dbError(err, "get_site", "name", name)
	}
	return &row, nil
}

// CreateSite creates a site under an experiment, returning the existing row
// when the pair is already registered.
func (ds *DataStore) CreateSite(ctx context.Context, name string, experimentID uint) (*Site, error) {
	row := Site{Name: name, ExperimentID: experimentID}
	err := ds.DB.WithContext(ctx).
		Where(Site{Name: name, ExperimentID: experimentID}).
		FirstOrCreate(&row).Error
	if err != nil {
		return nil, dbError(err, "create_site", "name", name)
	}
	return &row, nil
}

// GetEntity looks up a producing entity by kind and name. Entities are never
// created implicitly: an absent entity is a resolution failure of the caller's
// input, not a gap this layer may paper over.
func (ds *DataStore) GetEntity(ctx context.Context, kind, name string) (*Entity, error) {
	var row Entity
	err := ds.DB.WithContext(ctx).
		Where("kind = ? AND name = ?", kind, name).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundError("entity", fmt.Sprintf("%s/%s", kind, name))
		}
		return nil, dbError(err, "get_entity", "kind", kind, "name", name)
	}
	return &row, nil
}

// CreateEntity registers a producing entity. Registration is an explicit
// administrative act, separate from ingestion.
func (ds *DataStore) CreateEntity(ctx context.Context, kind, name string) (*Entity, error) {
	row := Entity{Kind: kind, Name: name}
	err := ds.DB.WithContext(ctx).
		Where(Entity{Kind: kind, Name: name}).
		FirstOrCreate(&row).Error
	if err != nil {
		return nil, dbError(err, "create_entity", "kind", kind, "name", name)
	}
	return &row, nil
}

// GetOrCreateDataset resolves a dataset by name, creating it under the given
// entity when absent. Datasets are the only hierarchy level the resolver may
// create on demand.
func (ds *DataStore) GetOrCreateDataset(ctx context.Context, name string, entityID uint) (*Dataset, error) {
	row := Dataset{Name: name, EntityID: entityID}
	err := ds.DB.WithContext(ctx).
		Where(Dataset{Name: name}).
		FirstOrCreate(&row).Error
	if err != nil {
		return nil, dbError(err, "get_or_create_dataset", "name", name)
	}
	return &row, nil
}

// LinkEntityToExperiment associates a producing entity with an experiment.
// The link is what makes the entity's datasets eligible for combinations
// under that experiment on the next refresh.
func (ds *DataStore) LinkEntityToExperiment(ctx context.Context, entityID, experimentID uint) error {
	link := EntityExperiment{EntityID: entityID, ExperimentID: experimentID}
	err := ds.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&link).Error
	if err != nil {
		return dbError(err, "link_entity_to_experiment",
			"entity_id", entityID, "experiment_id", experimentID)
	}
	return nil
}

// RefreshValidCombinations rebuilds the materialized valid-combinations table
// in full from the dimension tables: every experiment crossed with its
// seasons and sites, and with the datasets of every entity linked to it.
// The rebuild runs in one transaction so readers never observe a half-built
// table. Combinations are derived, never edited row by row.
func (ds *DataStore) RefreshValidCombinations(ctx context.Context) error {
	const rebuild = `
		INSERT INTO valid_combinations
			(experiment_id, season_id, site_id, dataset_id, entity_id,
			 experiment_name, season_name, site_name, dataset_name, entity_name)
		SELECT
			experiments.id, seasons.id, sites.id, datasets.id, entities.id,
			experiments.name, seasons.name, sites.name, datasets.name, entities.name
		FROM experiments
		JOIN seasons ON seasons.experiment_id = experiments.id
		JOIN sites ON sites.experiment_id = experiments.id
		JOIN entity_experiments ON entity_experiments.experiment_id = experiments.id
		JOIN entities ON entities.id = entity_experiments.entity_id
		JOIN datasets ON datasets.entity_id = entities.id`

	err := ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM valid_combinations").Error; err != nil {
			return err
		}
		return tx.Exec(rebuild).Error
	})
	if err != nil {
		return dbError(err, "refresh_valid_combinations")
	}
	return nil
}

// CombinationFilter narrows a valid-combinations query. Empty fields match
// everything; names are matched exactly.
type CombinationFilter struct {
	Experiment string
	Season     string
	Site       string
	Dataset    string
	Entity     string
}

// ValidCombinations returns the registered combinations matching the filter.
// Partial filters support both tuple completion during resolution and
// planning queries ("which sites does this dataset cover?").
func (ds *DataStore) ValidCombinations(ctx context.Context, filter CombinationFilter) ([]ValidCombination, error) {
	query := ds.DB.WithContext(ctx).Model(&ValidCombination{})
	if filter.Experiment != "" {
		query = query.Where("experiment_name = ?", filter.Experiment)
	}
	if filter.Season != "" {
		query = query.Where("season_name = ?", filter.Season)
	}
	if filter.Site != "" {
		query = query.Where("site_name = ?", filter.Site)
	}
	if filter.Dataset != "" {
		query = query.Where("dataset_name = ?", filter.Dataset)
	}
	if filter.Entity != "" {
		query = query.Where("entity_name = ?", filter.Entity)
	}

	var rows []ValidCombination
	if err := query.Find(&rows).Error; err != nil {
		return nil, dbError(err, "valid_combinations")
	}
	return rows, nil
}
