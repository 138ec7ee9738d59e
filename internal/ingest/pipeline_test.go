package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenobase/fieldstore/internal/conf"
	"github.com/phenobase/fieldstore/internal/datastore"
	"github.com/phenobase/fieldstore/internal/errors"
	"github.com/phenobase/fieldstore/internal/hierarchy"
	"github.com/phenobase/fieldstore/internal/objectstore"
	"github.com/phenobase/fieldstore/internal/record"
)

// newPipeline wires a pipeline over a temporary SQLite datastore and an
// in-memory object store, seeded with one experiment (GEMINI, season 2021,
// site Davis) and a linked weather sensor entity.
func newPipeline(t *testing.T) (*Pipeline, datastore.Interface, objectstore.Store) {
	t.Helper()
	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = t.TempDir() + "/test.db"
	settings.Ingest.UploadWorkers = 4

	store := datastore.New(settings)
	require.NoError(t, store.Open())
	t.Cleanup(func() { assert.NoError(t, store.Close()) })

	ctx := context.Background()
	exp, err := store.CreateExperiment(ctx, "GEMINI")
	require.NoError(t, err)
	_, err = store.CreateSeason(ctx, "2021", exp.ID)
	require.NoError(t, err)
	_, err = store.CreateSite(ctx, "Davis", exp.ID)
	require.NoError(t, err)
	entity, err := store.CreateEntity(ctx, "sensor", "Weather Sensor")
	require.NoError(t, err)
	require.NoError(t, store.LinkEntityToExperiment(ctx, entity.ID, exp.ID))

	objects := objectstore.NewMemory()
	pipeline := New(settings, store, objects, hierarchy.NewResolver(store))
	return pipeline, store, objects
}

// writeTempFile creates a payload file and returns its path.
func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func sensorRecord(ts time.Time) *record.Record {
	return &record.Record{
		Kind:           record.KindSensor,
		Timestamp:      ts,
		EntityName:     "Weather Sensor",
		DatasetName:    "Weather Sensor_2021-01-01",
		ExperimentName: "GEMINI",
		SeasonName:     "2021",
		SiteName:       "Davis",
		Payload:        map[string]any{"temperature": 22.5},
	}
}

func countRows(t *testing.T, store datastore.Interface) int64 {
	t.Helper()
	sqliteStore, ok := store.(*datastore.SQLiteStore)
	require.True(t, ok)
	var count int64
	require.NoError(t, sqliteStore.DB.Model(&datastore.Record{}).Count(&count).Error)
	return count
}

func TestInsert_BatchWithFiles(t *testing.T) {
	pipeline, store, objects := newPipeline(t)
	ctx := context.Background()

	base := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	recs := []*record.Record{
		sensorRecord(base),
		sensorRecord(base.Add(time.Minute)),
		sensorRecord(base.Add(2 * time.Minute)),
	}
	recs[1].SourcePath = writeTempFile(t, "reading.jpg", "jpeg bytes")

	ids, err := pipeline.Insert(ctx, recs)
	require.NoError(t, err)
	require.Len(t, ids, 3)

	// The file-bearing record was rewritten to its storage key and the local
	// path dropped.
	assert.Empty(t, recs[1].SourcePath)
	require.NotEmpty(t, recs[1].FileKey)
	assert.Equal(t,
		"sensor_data/GEMINI/Weather Sensor/Weather Sensor_2021-01-01/2021-01-01/Davis/2021/1609459260000.jpg",
		recs[1].FileKey)

	exists, err := objects.Exists(ctx, recs[1].FileKey)
	require.NoError(t, err)
	assert.True(t, exists, "payload must be present in object storage")

	// The committed row carries the key, not the path.
	row, err := store.GetRecord(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, recs[1].FileKey, row.FileKey)
}

func TestInsert_IdempotentResubmission(t *testing.T) {
	pipeline, store, _ := newPipeline(t)
	ctx := context.Background()

	base := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	batch := func() []*record.Record {
		return []*record.Record{sensorRecord(base), sensorRecord(base.Add(time.Hour))}
	}

	ids, err := pipeline.Insert(ctx, batch())
	require.NoError(t, err)
	require.Len(t, ids, 2)

	// The same batch again, plus one new record: only the new identifier
	// comes back and no duplicate rows appear.
	resubmit := append(batch(), sensorRecord(base.Add(2*time.Hour)))
	ids, err = pipeline.Insert(ctx, resubmit)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, int64(3), countRows(t, store))
}

func TestInsert_InvalidRecordFailsFast(t *testing.T) {
	pipeline, store, _ := newPipeline(t)
	ctx := context.Background()

	recs := []*record.Record{
		sensorRecord(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)),
		{Kind: record.KindSensor}, // no timestamp, no entity, no dataset
	}

	_, err := pipeline.Insert(ctx, recs)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, int64(0), countRows(t, store), "an invalid record must poison the whole batch")
}

func TestInsert_UnknownEntityRejectsBatch(t *testing.T) {
	pipeline, store, _ := newPipeline(t)
	ctx := context.Background()

	rec := sensorRecord(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))
	rec.EntityName = "Phantom Sensor"

	_, err := pipeline.Insert(ctx, []*record.Record{rec})
	require.Error(t, err)
	assert.True(t, errors.IsResolution(err))
	assert.Equal(t, int64(0), countRows(t, store))
}

func TestInsert_FailedUploadAbortsBatch(t *testing.T) {
	pipeline, store, _ := newPipeline(t)
	ctx := context.Background()

	base := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	recs := []*record.Record{
		sensorRecord(base),
		sensorRecord(base.Add(time.Minute)),
	}
	recs[1].SourcePath = filepath.Join(t.TempDir(), "missing.jpg")

	_, err := pipeline.Insert(ctx, recs)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, int64(0), countRows(t, store), "a failed upload must leave the store untouched")
}

func TestInsert_EmptyBatch(t *testing.T) {
	pipeline, _, _ := newPipeline(t)

	ids, err := pipeline.Insert(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCreate_ReturnsViewRow(t *testing.T) {
	pipeline, _, _ := newPipeline(t)
	ctx := context.Background()

	view, err := pipeline.Create(ctx, sensorRecord(time.Date(2021, 1, 1, 9, 0, 0, 0, time.UTC)), true)
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.NotZero(t, view.ID)
	assert.Equal(t, "GEMINI", view.ExperimentName)
	assert.Equal(t, "Davis", view.SiteName)

	// The same record again is absorbed without a duplicate row, and the
	// caller still receives the originally committed record.
	again, err := pipeline.Create(ctx, sensorRecord(time.Date(2021, 1, 1, 9, 0, 0, 0, time.UTC)), true)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, view.ID, again.ID)
}

func TestCreate_StagedUploadsWithoutInsert(t *testing.T) {
	pipeline, store, objects := newPipeline(t)
	ctx := context.Background()

	rec := sensorRecord(time.Date(2021, 1, 1, 11, 0, 0, 0, time.UTC))
	rec.SourcePath = writeTempFile(t, "staged.csv", "a,b\n1,2\n")

	view, err := pipeline.Create(ctx, rec, false)
	require.NoError(t, err)
	assert.Nil(t, view)

	// Staged: offloaded to object storage, but no row committed.
	exists, err := objects.Exists(ctx, rec.FileKey)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, int64(0), countRows(t, store))

	// A later batch insert commits the staged record as-is.
	ids, err := pipeline.Insert(ctx, []*record.Record{rec})
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestRepoint_RevalidatesTargetTuple(t *testing.T) {
	pipeline, store, _ := newPipeline(t)
	ctx := context.Background()

	ids, err := pipeline.Insert(ctx, []*record.Record{
		sensorRecord(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	// An unregistered target tuple is rejected before any row changes.
	bad := sensorRecord(time.Time{})
	bad.SiteName = "Maricopa"
	err = pipeline.Repoint(ctx, ids[0], bad)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	// Register a second site and move the record onto it.
	exp, err := store.GetExperiment(ctx, "GEMINI")
	require.NoError(t, err)
	_, err = store.CreateSite(ctx, "Gill Tract", exp.ID)
	require.NoError(t, err)

	target := sensorRecord(time.Time{})
	target.SiteName = "Gill Tract"
	require.NoError(t, pipeline.Repoint(ctx, ids[0], target))

	view, err := store.GetRecordFromView(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "Gill Tract", view.SiteName)
}

func TestUpdateFieldsAndDelete(t *testing.T) {
	pipeline, store, _ := newPipeline(t)
	ctx := context.Background()

	ids, err := pipeline.Insert(ctx, []*record.Record{
		sensorRecord(time.Date(2021, 1, 2, 0, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	require.NoError(t, pipeline.UpdateFields(ctx, ids[0], map[string]any{"temperature": 24.0}, nil))
	row, err := store.GetRecord(ctx, ids[0])
	require.NoError(t, err)
	assert.Contains(t, string(row.Payload), "24")

	require.NoError(t, pipeline.Delete(ctx, ids[0]))
	assert.True(t, errors.IsNotFound(pipeline.Delete(ctx, ids[0])))
}
