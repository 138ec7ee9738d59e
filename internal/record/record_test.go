package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenobase/fieldstore/internal/errors"
)

func testRecord() *Record {
	return &Record{
		Kind:           KindSensor,
		Timestamp:      time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		EntityName:     "Weather Sensor",
		DatasetName:    "Weather Sensor_2021-01-01",
		ExperimentName: "GEMINI",
		SeasonName:     "2021",
		SiteName:       "Davis",
		Payload:        map[string]any{"temperature": 22},
	}
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	for _, k := range AllKinds() {
		parsed, err := ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}

	_, err := ParseKind("telescope")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestNormalizeDerivesCollectionDate(t *testing.T) {
	t.Parallel()

	r := testRecord()
	r.Normalize()
	assert.Equal(t, "2021-01-01", r.CollectionDate)

	// explicit collection date is preserved
	r2 := testRecord()
	r2.CollectionDate = "2020-12-31"
	r2.Normalize()
	assert.Equal(t, "2020-12-31", r2.CollectionDate)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Record)
		wantErr bool
	}{
		{"valid", func(r *Record) {}, false},
		{"missing timestamp", func(r *Record) { r.Timestamp = time.Time{} }, true},
		{"missing entity", func(r *Record) { r.EntityName = "" }, true},
		{"missing dataset", func(r *Record) { r.DatasetName = "" }, true},
		{"no hierarchy names", func(r *Record) {
			r.ExperimentName, r.SeasonName, r.SiteName = "", "", ""
		}, true},
		{"no payload and no file", func(r *Record) { r.Payload = nil }, true},
		{"file instead of payload", func(r *Record) {
			r.Payload = nil
			r.SourcePath = "/tmp/capture.jpg"
		}, false},
		{"plot fields on non plot-scoped kind", func(r *Record) {
			r.Kind = KindModel
			n := 3
			r.PlotNumber = &n
		}, true},
		{"bad collection date", func(r *Record) { r.CollectionDate = "01/01/2021" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := testRecord()
			tt.mutate(r)
			err := r.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsValidation(err), "expected a validation error, got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStorageKeyFormat(t *testing.T) {
	t.Parallel()

	r := testRecord()
	r.SourcePath = "/data/captures/frame0001.jpg"
	r.Normalize()

	want := "sensor_data/GEMINI/Weather Sensor/Weather Sensor_2021-01-01/2021-01-01/Davis/2021/1609459200000.jpg"
	assert.Equal(t, want, r.StorageKey())
}

func TestStorageKeyWithoutExtension(t *testing.T) {
	t.Parallel()

	r := testRecord()
	r.Kind = KindScript
	r.SourcePath = "/data/logs/runlog"
	r.Normalize()

	assert.Equal(t,
		"script_data/GEMINI/Weather Sensor/Weather Sensor_2021-01-01/2021-01-01/Davis/2021/1609459200000",
		r.StorageKey())
}

func TestStorageTags(t *testing.T) {
	t.Parallel()

	r := testRecord()
	r.Normalize()
	tags := r.StorageTags()

	assert.Equal(t, "Weather Sensor", tags["entity"])
	assert.Equal(t, "Weather Sensor_2021-01-01", tags["dataset"])
	assert.Equal(t, "GEMINI", tags["experiment"])
	assert.Equal(t, "Davis", tags["site"])
	assert.Equal(t, "2021", tags["season"])
	assert.Equal(t, "2021-01-01", tags["collection_date"])
	assert.Equal(t, "2021-01-01T00:00:00Z", tags["timestamp"])
}

func TestHasSourceFile(t *testing.T) {
	t.Parallel()

	r := testRecord()
	assert.False(t, r.HasSourceFile())

	r.SourcePath = "/tmp/a.png"
	assert.True(t, r.HasSourceFile())

	// once rewritten to a storage key the local source is no longer pending
	r.FileKey = "sensor_data/x/1.png"
	assert.False(t, r.HasSourceFile())
}
