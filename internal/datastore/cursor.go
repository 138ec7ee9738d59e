// cursor.go: streamed, filtered reads over the derived record view.
package datastore

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/phenobase/fieldstore/internal/errors"
)

// RecordQuery filters a streamed read over the derived record view. Name
// slices match any of their values; zero values match everything. At least
// one filter must be set: unbounded scans over the whole store are rejected.
type RecordQuery struct {
	Kind        string
	Experiments []string
	Seasons     []string
	Sites       []string
	Datasets    []string
	Entities    []string
	// Collection date bounds, both inclusive, format 2006-01-02.
	DateFrom string
	DateTo   string
	// Timestamp window, inclusive start / exclusive end. Zero values leave
	// the corresponding bound open.
	Start time.Time
	End   time.Time
	// PlotNumber narrows plot-scoped kinds to a single plot.
	PlotNumber *int
	// Metadata matches records whose metadata contains every given
	// top-level key with exactly the given value.
	Metadata map[string]any
}

// isEmpty reports whether no filter field is set.
func (q *RecordQuery) isEmpty() bool {
	return q.Kind == "" && len(q.Experiments) == 0 && len(q.Seasons) == 0 &&
		len(q.Sites) == 0 && len(q.Datasets) == 0 && len(q.Entities) == 0 &&
		q.DateFrom == "" && q.DateTo == "" &&
		q.Start.IsZero() && q.End.IsZero() &&
		q.PlotNumber == nil && len(q.Metadata) == 0
}

// RecordCursor is a server-side cursor over matching view rows. Rows are
// fetched incrementally as Next advances, never buffered in full. Callers
// must Close the cursor; closing early releases the underlying rows.
type RecordCursor struct {
	rows    *sql.Rows
	db      *gorm.DB
	current RecordView
	err     error
}

// OpenRecordCursor opens a streaming read over the derived record view.
// Results are ordered by timestamp, then id for a stable tiebreak.
func (ds *DataStore) OpenRecordCursor(ctx context.Context, query RecordQuery) (*RecordCursor, error) {
	if query.isEmpty() {
		return nil, errors.ValidationError("record query must set at least one filter")
	}

	tx := ds.DB.WithContext(ctx).Model(&RecordView{})
	if query.Kind != "" {
		tx = tx.Where("kind = ?", query.Kind)
	}
	if len(query.Experiments) > 0 {
		tx = tx.Where("experiment_name IN ?", query.Experiments)
	}
	if len(query.Seasons) > 0 {
		tx = tx.Where("season_name IN ?", query.Seasons)
	}
	if len(query.Sites) > 0 {
		tx = tx.Where("site_name IN ?", query.Sites)
	}
	if len(query.Datasets) > 0 {
		tx = tx.Where("dataset_name IN ?", query.Datasets)
	}
	if len(query.Entities) > 0 {
		tx = tx.Where("entity_name IN ?", query.Entities)
	}
	if query.DateFrom != "" {
		tx = tx.Where("collection_date >= ?", query.DateFrom)
	}
	if query.DateTo != "" {
		tx = tx.Where("collection_date <= ?", query.DateTo)
	}
	if !query.Start.IsZero() {
		tx = tx.Where("timestamp >= ?", query.Start)
	}
	if !query.End.IsZero() {
		tx = tx.Where("timestamp < ?", query.End)
	}
	if query.PlotNumber != nil {
		tx = tx.Where("plot_number = ?", *query.PlotNumber)
	}
	for key, value := range query.Metadata {
		tx = tx.Where(datatypes.JSONQuery("metadata").Equals(value, key))
	}

	rows, err := tx.Order("timestamp, id").Rows()
	if err != nil {
		return nil, dbError(err, "open_record_cursor")
	}
	return &RecordCursor{rows: rows, db: ds.DB}, nil
}

// Next advances the cursor to the next row, reporting whether one is
// available. After Next returns false, check Err for a scan or transport
// failure.
func (c *RecordCursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	var row RecordView
	if err := c.db.ScanRows(c.rows, &row); err != nil {
		c.err = dbError(err, "scan_record_cursor")
		return false
	}
	c.current = row
	return true
}

// Record returns the row the cursor currently points at. Only valid after a
// Next call that returned true.
func (c *RecordCursor) Record() *RecordView {
	return &c.current
}

// Err returns the first failure encountered while iterating, if any.
func (c *RecordCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	if err := c.rows.Err(); err != nil {
		return dbError(err, "record_cursor")
	}
	return nil
}

// Close releases the underlying server-side cursor. Safe to call more than
// once.
func (c *RecordCursor) Close() error {
	return c.rows.Close()
}
