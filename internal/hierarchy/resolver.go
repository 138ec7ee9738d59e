// Package hierarchy resolves a record's experiment/season/site/dataset/entity
// names against the registered dimension tables and the valid-combinations
// view. Resolution is the gate every write passes through: entities must
// already exist, datasets are created on demand, and the final tuple must
// match exactly one registered combination.
package hierarchy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/phenobase/fieldstore/internal/datastore"
	"github.com/phenobase/fieldstore/internal/errors"
	"github.com/phenobase/fieldstore/internal/logging"
	"github.com/phenobase/fieldstore/internal/record"
)

const (
	// cacheTTL bounds how stale a cached resolution may be. Dimension tables
	// change rarely relative to record traffic, so a short TTL trades a few
	// extra lookups for bounded staleness.
	cacheTTL      = 5 * time.Minute
	cacheCleanup  = 10 * time.Minute
	refreshMarker = "combinations-fresh"
)

// Resolver validates and completes hierarchy tuples against the datastore.
// Resolutions are cached with a TTL; the valid-combinations table is
// refreshed lazily, at most once per TTL window plus once after any dataset
// this resolver creates.
type Resolver struct {
	store datastore.Interface
	cache *cache.Cache
	log   *slog.Logger
}

// NewResolver creates a resolver over the given datastore.
func NewResolver(store datastore.Interface) *Resolver {
	return &Resolver{
		store: store,
		cache: cache.New(cacheTTL, cacheCleanup),
		log:   logging.ForService("hierarchy"),
	}
}

// ResolveOrCreate resolves the hierarchy names carried by a record into a
// fully identified tuple.
//
// The entity must already be registered for the record's kind: an absent
// entity is a resolution error, never an implicit create. The dataset is the
// one level created on demand, under the record's entity. The resulting
// (experiment, season, site, dataset, entity) tuple must match exactly one
// registered combination; partially specified hierarchies are completed from
// that single match, and zero or multiple matches reject the record as
// invalid input.
func (r *Resolver) ResolveOrCreate(ctx context.Context, rec *record.Record) (datastore.HierarchyRef, error) {
	key := resolutionKey(rec)
	if cached, ok := r.cache.Get(key); ok {
		return cached.(datastore.HierarchyRef), nil
	}

	entity, err := r.store.GetEntity(ctx, string(rec.Kind), rec.EntityName)
	if err != nil {
		if errors.IsNotFound(err) {
			return datastore.HierarchyRef{}, errors.Newf(
				"entity %q of kind %s is not registered", rec.EntityName, rec.Kind).
				Component("hierarchy").
				Category(errors.CategoryResolution).
				Context("entity", rec.EntityName).
				Context("kind", string(rec.Kind)).
				Build()
		}
		return datastore.HierarchyRef{}, err
	}

	dataset, err := r.store.GetOrCreateDataset(ctx, rec.DatasetName, entity.ID)
	if err != nil {
		return datastore.HierarchyRef{}, err
	}

	if err := r.ensureFreshCombinations(ctx); err != nil {
		return datastore.HierarchyRef{}, err
	}

	filter := datastore.CombinationFilter{
		Experiment: rec.ExperimentName,
		Season:     rec.SeasonName,
		Site:       rec.SiteName,
		Dataset:    dataset.Name,
		Entity:     entity.Name,
	}
	combos, err := r.store.ValidCombinations(ctx, filter)
	if err != nil {
		return datastore.HierarchyRef{}, err
	}
	if len(combos) == 0 {
		// The dataset may have been created within the current TTL window,
		// after the last rebuild. Force one rebuild and retry before
		// rejecting the tuple.
		r.cache.Delete(refreshMarker)
		if err := r.ensureFreshCombinations(ctx); err != nil {
			return datastore.HierarchyRef{}, err
		}
		if combos, err = r.store.ValidCombinations(ctx, filter); err != nil {
			return datastore.HierarchyRef{}, err
		}
	}

	switch len(combos) {
	case 0:
		return datastore.HierarchyRef{}, errors.Newf(
			"hierarchy %s is not a registered combination", tupleString(rec)).
			Component("hierarchy").
			Category(errors.CategoryValidation).
			Context("entity", entity.Name).
			Context("dataset", dataset.Name).
			Build()
	case 1:
		// Single match: adopt the full tuple, completing any level the
		// caller left blank.
	default:
		return datastore.HierarchyRef{}, errors.Newf(
			"hierarchy %s matches %d combinations, specify more levels",
			tupleString(rec), len(combos)).
			Component("hierarchy").
			Category(errors.CategoryValidation).
			Context("matches", len(combos)).
			Build()
	}

	combo := combos[0]
	ref := datastore.HierarchyRef{
		ExperimentID:   combo.ExperimentID,
		ExperimentName: combo.ExperimentName,
		SeasonID:       combo.SeasonID,
		SeasonName:     combo.SeasonName,
		SiteID:         combo.SiteID,
		SiteName:       combo.SiteName,
		DatasetID:      combo.DatasetID,
		DatasetName:    combo.DatasetName,
		EntityID:       combo.EntityID,
		EntityName:     combo.EntityName,
	}
	r.cache.SetDefault(key, ref)
	return ref, nil
}

// ValidCombinations lists registered combinations matching the filter, for
// planning queries and administrative tooling. The combinations table is
// refreshed first so callers see links and datasets created since the last
// ingestion.
func (r *Resolver) ValidCombinations(ctx context.Context, filter datastore.CombinationFilter) ([]datastore.ValidCombination, error) {
	if err := r.store.RefreshValidCombinations(ctx); err != nil {
		return nil, err
	}
	r.cache.SetDefault(refreshMarker, true)
	return r.store.ValidCombinations(ctx, filter)
}

// LinkEntityToExperiment registers an entity-experiment association and
// invalidates cached state so the new combinations become visible on the
// next resolution.
func (r *Resolver) LinkEntityToExperiment(ctx context.Context, entityID, experimentID uint) error {
	if err := r.store.LinkEntityToExperiment(ctx, entityID, experimentID); err != nil {
		return err
	}
	r.cache.Flush()
	return nil
}

// ensureFreshCombinations rebuilds the valid-combinations table unless a
// rebuild already happened inside the current TTL window. Resolution must
// see datasets created moments ago, so the rebuild runs before matching, not
// after.
func (r *Resolver) ensureFreshCombinations(ctx context.Context) error {
	if _, ok := r.cache.Get(refreshMarker); ok {
		return nil
	}
	start := time.Now()
	if err := r.store.RefreshValidCombinations(ctx); err != nil {
		return err
	}
	r.log.Debug("valid combinations rebuilt", "duration_ms", time.Since(start).Milliseconds())
	r.cache.SetDefault(refreshMarker, true)
	return nil
}

func resolutionKey(rec *record.Record) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		rec.Kind, rec.EntityName, rec.DatasetName,
		rec.ExperimentName, rec.SeasonName, rec.SiteName)
}

func tupleString(rec *record.Record) string {
	return fmt.Sprintf("(experiment=%q season=%q site=%q dataset=%q entity=%q)",
		rec.ExperimentName, rec.SeasonName, rec.SiteName, rec.DatasetName, rec.EntityName)
}
