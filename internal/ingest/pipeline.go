// Package ingest implements the write path: batch validation, hierarchy
// resolution, binary payload offload to object storage, and idempotent bulk
// insertion into the record store.
package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/phenobase/fieldstore/internal/conf"
	"github.com/phenobase/fieldstore/internal/datastore"
	"github.com/phenobase/fieldstore/internal/errors"
	"github.com/phenobase/fieldstore/internal/hierarchy"
	"github.com/phenobase/fieldstore/internal/logging"
	"github.com/phenobase/fieldstore/internal/objectstore"
	"github.com/phenobase/fieldstore/internal/observability/metrics"
	"github.com/phenobase/fieldstore/internal/record"
)

// Pipeline carries a record batch from caller input to committed rows. Every
// stage is all-or-nothing: a batch with one invalid record, one unresolvable
// tuple or one failed upload inserts zero rows.
type Pipeline struct {
	store         datastore.Interface
	objects       objectstore.Store
	resolver      *hierarchy.Resolver
	log           *slog.Logger
	metrics       *metrics.IngestMetrics
	uploadWorkers int
}

// New creates an ingestion pipeline over the given stores.
func New(settings *conf.Settings, store datastore.Interface, objects objectstore.Store, resolver *hierarchy.Resolver) *Pipeline {
	workers := settings.Ingest.UploadWorkers
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		store:         store,
		objects:       objects,
		resolver:      resolver,
		log:           logging.ForService("ingest"),
		uploadWorkers: workers,
	}
}

// SetMetrics attaches ingestion metrics to the pipeline. Without them the
// pipeline runs unmetered.
func (p *Pipeline) SetMetrics(m *metrics.IngestMetrics) {
	p.metrics = m
}

// Insert ingests a batch of records and returns the identifiers of rows the
// batch actually created. Records whose deduplication tuple is already
// present are absorbed silently: no error, no duplicate row, and no
// identifier in the result.
//
// File-bearing records have their payload uploaded to object storage first;
// the durable storage key replaces the local source path before the row is
// written. Uploads of distinct records run concurrently.
func (p *Pipeline) Insert(ctx context.Context, recs []*record.Record) ([]uint, error) {
	if len(recs) == 0 {
		return nil, nil
	}

	batchID := uuid.New().String()
	start := time.Now()
	kind := batchKind(recs)

	rows, err := p.prepare(ctx, batchID, recs)
	if err != nil {
		p.observeBatch(kind, metrics.StatusError, len(recs), start)
		return nil, err
	}

	inserted, err := p.store.InsertRecords(ctx, rows)
	if err != nil {
		p.observeBatch(kind, metrics.StatusError, len(recs), start)
		return nil, err
	}

	p.observeBatch(kind, metrics.StatusSuccess, len(recs), start)
	if p.metrics != nil {
		p.metrics.RecordRecords(kind, metrics.StatusSuccess, len(inserted))
		p.metrics.RecordRecords(kind, metrics.StatusDuplicate, len(recs)-len(inserted))
	}
	p.log.Info("batch ingested",
		"batch_id", batchID,
		"kind", kind,
		"submitted", len(recs),
		"inserted", len(inserted),
		"duplicates", len(recs)-len(inserted),
		"duration_ms", time.Since(start).Milliseconds())

	return inserted, nil
}

// Create ingests a single record. With insert enabled the committed row is
// re-read through the derived view so the caller gets the record exactly as
// queries will see it, hierarchy names included; if the record's tuple was
// already committed by an earlier insert, the pre-existing row is returned
// instead. With insert disabled the record is only staged: validated,
// resolved and its file offloaded, ready for a later batch Insert.
func (p *Pipeline) Create(ctx context.Context, rec *record.Record, insert bool) (*datastore.RecordView, error) {
	if !insert {
		if _, err := p.prepare(ctx, uuid.New().String(), []*record.Record{rec}); err != nil {
			return nil, err
		}
		return nil, nil
	}

	ids, err := p.Insert(ctx, []*record.Record{rec})
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		// Deduplicated: the tuple is already in the store. Look the row up by
		// its identity so the caller still receives the committed record.
		id, err := p.findExisting(ctx, rec)
		if err != nil {
			return nil, err
		}
		return p.store.GetRecordFromView(ctx, id)
	}
	return p.store.GetRecordFromView(ctx, ids[0])
}

// findExisting resolves a record's identity tuple to the identifier of the
// row an earlier insert committed. Resolution hits the cache: Insert resolved
// the same tuple moments ago.
func (p *Pipeline) findExisting(ctx context.Context, rec *record.Record) (uint, error) {
	ref, err := p.resolveOne(ctx, rec)
	if err != nil {
		return 0, err
	}
	row, err := toRow(rec, ref)
	if err != nil {
		return 0, err
	}
	return p.store.FindRecordID(ctx, row)
}

// UpdateFields mutates the payload and/or metadata of a committed record.
func (p *Pipeline) UpdateFields(ctx context.Context, id uint, payload, metadata map[string]any) error {
	return p.store.UpdateRecordFields(ctx, id, payload, metadata)
}

// Delete removes a committed record row. The offloaded object, if any, is
// retained: storage keys are audit state, not reference-counted.
func (p *Pipeline) Delete(ctx context.Context, id uint) error {
	return p.store.DeleteRecord(ctx, id)
}

// Repoint moves a committed record to a different hierarchy tuple. The
// target tuple passes through the same resolution gate as ingestion, so a
// record can never be repointed onto an unregistered combination.
func (p *Pipeline) Repoint(ctx context.Context, id uint, target *record.Record) error {
	target.Normalize()
	ref, err := p.resolveOne(ctx, target)
	if err != nil {
		return err
	}
	return p.store.RepointRecord(ctx, id, ref)
}

// prepare runs the pre-insert stages on a batch: normalization and
// validation of every record, hierarchy resolution of every tuple, then
// concurrent upload of all file payloads. It fails on the first problem,
// before any row is written.
func (p *Pipeline) prepare(ctx context.Context, batchID string, recs []*record.Record) ([]*datastore.Record, error) {
	// Validation is all-or-nothing and runs before any network I/O.
	for i, rec := range recs {
		rec.Normalize()
		if err := rec.Validate(); err != nil {
			return nil, errors.New(err).
				Component("ingest").
				Category(errors.CategoryValidation).
				Context("batch_index", i).
				Build()
		}
	}

	refs := make([]datastore.HierarchyRef, len(recs))
	for i, rec := range recs {
		ref, err := p.resolveOne(ctx, rec)
		if err != nil {
			return nil, err
		}
		refs[i] = ref
		// Adopt the resolved names so storage keys and committed rows carry
		// the completed tuple, not the caller's partial one.
		rec.ExperimentName = ref.ExperimentName
		rec.SeasonName = ref.SeasonName
		rec.SiteName = ref.SiteName
	}

	if err := p.uploadFiles(ctx, batchID, recs); err != nil {
		return nil, err
	}

	rows := make([]*datastore.Record, len(recs))
	for i, rec := range recs {
		row, err := toRow(rec, refs[i])
		if err != nil {
			return nil, err
		}
		rows[i] = row
	}
	return rows, nil
}

// uploadFiles offloads every file-bearing record's payload to object
// storage, bounded by the configured worker count. Any single failure
// cancels the remaining uploads and aborts the batch.
func (p *Pipeline) uploadFiles(ctx context.Context, batchID string, recs []*record.Record) error {
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(p.uploadWorkers)

	for _, rec := range recs {
		if !rec.HasSourceFile() {
			continue
		}
		group.Go(func() error {
			key := rec.StorageKey()
			tags := rec.StorageTags()
			tags["batch_id"] = batchID
			_, err := p.objects.Upload(ctx, key, objectstore.FromFile(rec.SourcePath), objectstore.UploadOptions{
				Tags: tags,
			})
			if err != nil {
				return err
			}
			// The key is written exactly once; the local path is not
			// retained past this point.
			rec.FileKey = key
			rec.SourcePath = ""
			return nil
		})
	}
	return group.Wait()
}

func (p *Pipeline) resolveOne(ctx context.Context, rec *record.Record) (datastore.HierarchyRef, error) {
	start := time.Now()
	ref, err := p.resolver.ResolveOrCreate(ctx, rec)
	if p.metrics != nil {
		status := metrics.StatusSuccess
		if err != nil {
			status = metrics.StatusError
		}
		p.metrics.RecordResolution(status, time.Since(start).Seconds())
	}
	return ref, err
}

func (p *Pipeline) observeBatch(kind, status string, size int, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordBatch(kind, status, size, time.Since(start).Seconds())
}

// toRow converts a resolved record into its relational row.
func toRow(rec *record.Record, ref datastore.HierarchyRef) (*datastore.Record, error) {
	row := &datastore.Record{
		Kind:           string(rec.Kind),
		Timestamp:      rec.Timestamp,
		CollectionDate: rec.CollectionDate,
		DatasetID:      ref.DatasetID,
		DatasetName:    ref.DatasetName,
		EntityID:       ref.EntityID,
		EntityName:     ref.EntityName,
		ExperimentID:   ref.ExperimentID,
		SeasonID:       ref.SeasonID,
		SiteID:         ref.SiteID,
		PlotNumber:     rec.PlotNumber,
		PlotRow:        rec.PlotRow,
		PlotColumn:     rec.PlotColumn,
		FileKey:        rec.FileKey,
	}

	if len(rec.Payload) > 0 {
		data, err := json.Marshal(rec.Payload)
		if err != nil {
			return nil, errors.New(err).
				Component("ingest").
				Category(errors.CategoryValidation).
				Context("field", "payload").
				Build()
		}
		row.Payload = data
	}
	if len(rec.Metadata) > 0 {
		data, err := json.Marshal(rec.Metadata)
		if err != nil {
			return nil, errors.New(err).
				Component("ingest").
				Category(errors.CategoryValidation).
				Context("field", "metadata").
				Build()
		}
		row.Metadata = data
	}

	hash, err := datastore.HashMetadata(rec.Metadata)
	if err != nil {
		return nil, errors.New(err).
			Component("ingest").
			Category(errors.CategoryValidation).
			Context("field", "metadata").
			Build()
	}
	row.MetadataHash = hash
	return row, nil
}

// batchKind labels a batch for metrics: the shared kind when uniform,
// otherwise "mixed".
func batchKind(recs []*record.Record) string {
	kind := recs[0].Kind
	for _, rec := range recs[1:] {
		if rec.Kind != kind {
			return "mixed"
		}
	}
	return string(kind)
}
