// datastore_test.go: integration tests for record persistence, dimension
// management and streamed reads. These use real SQLite databases (not mocks)
// to exercise actual GORM behavior.
package datastore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenobase/fieldstore/internal/conf"
	"github.com/phenobase/fieldstore/internal/errors"
)

// seedHierarchy registers the dimension rows every record test depends on and
// rebuilds the valid-combinations table.
func seedHierarchy(t *testing.T, ds Interface) HierarchyRef {
	t.Helper()
	ctx := context.Background()

	exp, err := ds.CreateExperiment(ctx, "GEMINI")
	require.NoError(t, err)
	season, err := ds.CreateSeason(ctx, "2021", exp.ID)
	require.NoError(t, err)
	site, err := ds.CreateSite(ctx, "Davis", exp.ID)
	require.NoError(t, err)
	entity, err := ds.CreateEntity(ctx, "sensor", "Weather Sensor")
	require.NoError(t, err)
	require.NoError(t, ds.LinkEntityToExperiment(ctx, entity.ID, exp.ID))
	dataset, err := ds.GetOrCreateDataset(ctx, "Weather Sensor_2021-01-01", entity.ID)
	require.NoError(t, err)
	require.NoError(t, ds.RefreshValidCombinations(ctx))

	return HierarchyRef{
		ExperimentID:   exp.ID,
		ExperimentName: exp.Name,
		SeasonID:       season.ID,
		SeasonName:     season.Name,
		SiteID:         site.ID,
		SiteName:       site.Name,
		DatasetID:      dataset.ID,
		DatasetName:    dataset.Name,
		EntityID:       entity.ID,
		EntityName:     entity.Name,
	}
}

// makeRecord builds a record row at the given timestamp under the seeded
// hierarchy.
func makeRecord(ref HierarchyRef, ts time.Time, metadata map[string]any) *Record {
	hash, _ := HashMetadata(metadata)
	return &Record{
		Kind:           "sensor",
		Timestamp:      ts,
		CollectionDate: ts.Format("2006-01-02"),
		DatasetID:      ref.DatasetID,
		DatasetName:    ref.DatasetName,
		EntityID:       ref.EntityID,
		EntityName:     ref.EntityName,
		ExperimentID:   ref.ExperimentID,
		SeasonID:       ref.SeasonID,
		SiteID:         ref.SiteID,
		Payload:        []byte(`{"temperature": 22.5}`),
		MetadataHash:   hash,
	}
}

func TestInsertRecords_DuplicatesAbsorbed(t *testing.T) {
	ds := createDatabase(t, &conf.Settings{})
	ref := seedHierarchy(t, ds)
	ctx := context.Background()

	base := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	first := []*Record{
		makeRecord(ref, base, nil),
		makeRecord(ref, base.Add(time.Minute), nil),
	}

	ids, err := ds.InsertRecords(ctx, first)
	require.NoError(t, err)
	require.Len(t, ids, 2, "initial insert should report both rows as new")

	// Re-submit the same batch plus one genuinely new row. Only the new
	// row's identifier comes back.
	second := []*Record{
		makeRecord(ref, base, nil),
		makeRecord(ref, base.Add(time.Minute), nil),
		makeRecord(ref, base.Add(2*time.Minute), nil),
	}
	ids, err = ds.InsertRecords(ctx, second)
	require.NoError(t, err)
	require.Len(t, ids, 1, "duplicates must be absorbed silently")

	store, ok := ds.(*SQLiteStore)
	require.True(t, ok)
	var count int64
	require.NoError(t, store.DB.Model(&Record{}).Count(&count).Error)
	assert.Equal(t, int64(3), count, "store should hold exactly three rows")
}

func TestFindRecordID_ByIdentityTuple(t *testing.T) {
	ds := createDatabase(t, &conf.Settings{})
	ref := seedHierarchy(t, ds)
	ctx := context.Background()

	base := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	ids, err := ds.InsertRecords(ctx, []*Record{makeRecord(ref, base, nil)})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	// A fresh row carrying the same tuple resolves to the committed one.
	id, err := ds.FindRecordID(ctx, makeRecord(ref, base, nil))
	require.NoError(t, err)
	assert.Equal(t, ids[0], id)

	// An uncommitted tuple reports not-found.
	_, err = ds.FindRecordID(ctx, makeRecord(ref, base.Add(time.Hour), nil))
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestInsertRecords_MetadataDistinguishesRows(t *testing.T) {
	ds := createDatabase(t, &conf.Settings{})
	ref := seedHierarchy(t, ds)
	ctx := context.Background()

	ts := time.Date(2021, 1, 1, 12, 0, 0, 0, time.UTC)
	rows := []*Record{
		makeRecord(ref, ts, nil),
		makeRecord(ref, ts, map[string]any{"operator": "field-team-2"}),
	}

	ids, err := ds.InsertRecords(ctx, rows)
	require.NoError(t, err)
	assert.Len(t, ids, 2, "differing metadata makes a distinct tuple")
}

func TestInsertRecords_EmptyBatch(t *testing.T) {
	ds := createDatabase(t, &conf.Settings{})
	seedHierarchy(t, ds)

	ids, err := ds.InsertRecords(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestGetRecordFromView_ResolvesNames(t *testing.T) {
	ds := createDatabase(t, &conf.Settings{})
	ref := seedHierarchy(t, ds)
	ctx := context.Background()

	ts := time.Date(2021, 1, 1, 8, 30, 0, 0, time.UTC)
	ids, err := ds.InsertRecords(ctx, []*Record{makeRecord(ref, ts, nil)})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	view, err := ds.GetRecordFromView(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "GEMINI", view.ExperimentName)
	assert.Equal(t, "2021", view.SeasonName)
	assert.Equal(t, "Davis", view.SiteName)
	assert.Equal(t, "Weather Sensor", view.EntityName)
	assert.Equal(t, "2021-01-01", view.CollectionDate)
}

func TestGetRecord_NotFound(t *testing.T) {
	ds := createDatabase(t, &conf.Settings{})

	_, err := ds.GetRecord(context.Background(), 9999)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err), "absent record should map to a not-found error")
}

func TestUpdateRecordFields(t *testing.T) {
	ds := createDatabase(t, &conf.Settings{})
	ref := seedHierarchy(t, ds)
	ctx := context.Background()

	ts := time.Date(2021, 1, 2, 0, 0, 0, 0, time.UTC)
	ids, err := ds.InsertRecords(ctx, []*Record{makeRecord(ref, ts, nil)})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	err = ds.UpdateRecordFields(ctx, ids[0],
		map[string]any{"temperature": 23.1},
		map[string]any{"revised": true})
	require.NoError(t, err)

	row, err := ds.GetRecord(ctx, ids[0])
	require.NoError(t, err)
	assert.Contains(t, string(row.Payload), "23.1")
	assert.NotEmpty(t, row.MetadataHash, "metadata hash must track the new metadata")

	// Updating an absent record reports not-found.
	err = ds.UpdateRecordFields(ctx, 9999, map[string]any{"x": 1}, nil)
	assert.True(t, errors.IsNotFound(err))
}

func TestDeleteRecord(t *testing.T) {
	ds := createDatabase(t, &conf.Settings{})
	ref := seedHierarchy(t, ds)
	ctx := context.Background()

	ts := time.Date(2021, 1, 3, 0, 0, 0, 0, time.UTC)
	ids, err := ds.InsertRecords(ctx, []*Record{makeRecord(ref, ts, nil)})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	require.NoError(t, ds.DeleteRecord(ctx, ids[0]))

	_, err = ds.GetRecord(ctx, ids[0])
	assert.True(t, errors.IsNotFound(err))
	assert.True(t, errors.IsNotFound(ds.DeleteRecord(ctx, ids[0])), "second delete reports not-found")
}

func TestRepointRecord(t *testing.T) {
	ds := createDatabase(t, &conf.Settings{})
	ref := seedHierarchy(t, ds)
	ctx := context.Background()

	// A second experiment the record will be moved to.
	exp2, err := ds.CreateExperiment(ctx, "OPEN2022")
	require.NoError(t, err)
	season2, err := ds.CreateSeason(ctx, "2022", exp2.ID)
	require.NoError(t, err)
	site2, err := ds.CreateSite(ctx, "Maricopa", exp2.ID)
	require.NoError(t, err)

	ts := time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC)
	ids, err := ds.InsertRecords(ctx, []*Record{makeRecord(ref, ts, nil)})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	moved := ref
	moved.ExperimentID = exp2.ID
	moved.ExperimentName = exp2.Name
	moved.SeasonID = season2.ID
	moved.SeasonName = season2.Name
	moved.SiteID = site2.ID
	moved.SiteName = site2.Name
	require.NoError(t, ds.RepointRecord(ctx, ids[0], moved))

	view, err := ds.GetRecordFromView(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "OPEN2022", view.ExperimentName)
	assert.Equal(t, "2022", view.SeasonName)
	assert.Equal(t, "Maricopa", view.SiteName)
}

func TestRefreshValidCombinations_FullRebuild(t *testing.T) {
	ds := createDatabase(t, &conf.Settings{})
	ref := seedHierarchy(t, ds)
	ctx := context.Background()

	combos, err := ds.ValidCombinations(ctx, CombinationFilter{})
	require.NoError(t, err)
	require.Len(t, combos, 1)
	assert.Equal(t, "GEMINI", combos[0].ExperimentName)
	assert.Equal(t, "Weather Sensor", combos[0].EntityName)

	// A second site doubles the cross product after the next refresh, and
	// only after it: combinations are derived, not incrementally edited.
	_, err = ds.CreateSite(ctx, "Gill Tract", ref.ExperimentID)
	require.NoError(t, err)

	combos, err = ds.ValidCombinations(ctx, CombinationFilter{})
	require.NoError(t, err)
	assert.Len(t, combos, 1, "new site must not appear before a refresh")

	require.NoError(t, ds.RefreshValidCombinations(ctx))
	combos, err = ds.ValidCombinations(ctx, CombinationFilter{})
	require.NoError(t, err)
	assert.Len(t, combos, 2)

	// Partial filters narrow the tuple set.
	combos, err = ds.ValidCombinations(ctx, CombinationFilter{Site: "Davis"})
	require.NoError(t, err)
	require.Len(t, combos, 1)
	assert.Equal(t, "Davis", combos[0].SiteName)
}

func TestRefreshValidCombinations_RequiresEntityLink(t *testing.T) {
	ds := createDatabase(t, &conf.Settings{})
	ctx := context.Background()

	exp, err := ds.CreateExperiment(ctx, "GEMINI")
	require.NoError(t, err)
	_, err = ds.CreateSeason(ctx, "2021", exp.ID)
	require.NoError(t, err)
	_, err = ds.CreateSite(ctx, "Davis", exp.ID)
	require.NoError(t, err)
	entity, err := ds.CreateEntity(ctx, "trait", "Canopy Cover")
	require.NoError(t, err)
	_, err = ds.GetOrCreateDataset(ctx, "Canopy Cover_2021", entity.ID)
	require.NoError(t, err)

	// No entity-experiment link yet: the entity's datasets are not eligible.
	require.NoError(t, ds.RefreshValidCombinations(ctx))
	combos, err := ds.ValidCombinations(ctx, CombinationFilter{})
	require.NoError(t, err)
	assert.Empty(t, combos)

	require.NoError(t, ds.LinkEntityToExperiment(ctx, entity.ID, exp.ID))
	require.NoError(t, ds.RefreshValidCombinations(ctx))
	combos, err = ds.ValidCombinations(ctx, CombinationFilter{})
	require.NoError(t, err)
	assert.Len(t, combos, 1)
}

func TestGetEntity_NeverAutoCreated(t *testing.T) {
	ds := createDatabase(t, &conf.Settings{})

	_, err := ds.GetEntity(context.Background(), "sensor", "Unknown Sensor")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestOpenRecordCursor_StreamsInOrder(t *testing.T) {
	ds := createDatabase(t, &conf.Settings{})
	ref := seedHierarchy(t, ds)
	ctx := context.Background()

	base := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]*Record, 0, 10)
	for i := range 10 {
		rows = append(rows, makeRecord(ref, base.Add(time.Duration(i)*time.Hour), nil))
	}
	ids, err := ds.InsertRecords(ctx, rows)
	require.NoError(t, err)
	require.Len(t, ids, 10)

	cursor, err := ds.OpenRecordCursor(ctx, RecordQuery{
		Experiments: []string{"GEMINI"},
		Start:       base,
		End:         base.Add(5 * time.Hour),
	})
	require.NoError(t, err)
	defer cursor.Close()

	var seen []time.Time
	for cursor.Next() {
		rec := cursor.Record()
		assert.Equal(t, "GEMINI", rec.ExperimentName)
		seen = append(seen, rec.Timestamp)
	}
	require.NoError(t, cursor.Err())
	require.Len(t, seen, 5, "end bound is exclusive")
	for i := 1; i < len(seen); i++ {
		assert.True(t, seen[i].After(seen[i-1]), "rows must stream in timestamp order")
	}
}

func TestOpenRecordCursor_MetadataAndDateFilters(t *testing.T) {
	ds := createDatabase(t, &conf.Settings{})
	ref := seedHierarchy(t, ds)
	ctx := context.Background()

	day1 := time.Date(2021, 1, 1, 12, 0, 0, 0, time.UTC)
	day2 := time.Date(2021, 1, 2, 12, 0, 0, 0, time.UTC)
	tagged := makeRecord(ref, day1, map[string]any{"operator": "field-team-2"})
	meta := map[string]any{"operator": "field-team-2"}
	data, err := json.Marshal(meta)
	require.NoError(t, err)
	tagged.Metadata = data

	_, err = ds.InsertRecords(ctx, []*Record{
		makeRecord(ref, day1, nil),
		tagged,
		makeRecord(ref, day2, nil),
	})
	require.NoError(t, err)

	// Metadata sub-match: only the tagged row.
	cursor, err := ds.OpenRecordCursor(ctx, RecordQuery{
		Metadata: map[string]any{"operator": "field-team-2"},
	})
	require.NoError(t, err)
	defer cursor.Close()
	var matched int
	for cursor.Next() {
		matched++
	}
	require.NoError(t, cursor.Err())
	assert.Equal(t, 1, matched)

	// Inclusive collection-date bounds.
	cursor, err = ds.OpenRecordCursor(ctx, RecordQuery{
		DateFrom: "2021-01-02",
		DateTo:   "2021-01-02",
	})
	require.NoError(t, err)
	defer cursor.Close()
	var dates []string
	for cursor.Next() {
		dates = append(dates, cursor.Record().CollectionDate)
	}
	require.NoError(t, cursor.Err())
	assert.Equal(t, []string{"2021-01-02"}, dates)
}

func TestOpenRecordCursor_RejectsUnfiltered(t *testing.T) {
	ds := createDatabase(t, &conf.Settings{})
	seedHierarchy(t, ds)

	_, err := ds.OpenRecordCursor(context.Background(), RecordQuery{})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err), "unbounded scans are rejected as invalid input")
}

func TestOpenRecordCursor_EarlyClose(t *testing.T) {
	ds := createDatabase(t, &conf.Settings{})
	ref := seedHierarchy(t, ds)
	ctx := context.Background()

	base := time.Date(2021, 2, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]*Record, 0, 20)
	for i := range 20 {
		rows = append(rows, makeRecord(ref, base.Add(time.Duration(i)*time.Minute), nil))
	}
	_, err := ds.InsertRecords(ctx, rows)
	require.NoError(t, err)

	cursor, err := ds.OpenRecordCursor(ctx, RecordQuery{Kind: "sensor"})
	require.NoError(t, err)

	require.True(t, cursor.Next())
	require.NoError(t, cursor.Close())
	require.NoError(t, cursor.Close(), "closing twice must be safe")
}
