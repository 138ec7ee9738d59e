// Package search implements the read path: filtered, streamed queries over
// the derived record view, with download URLs resolved for file-backed rows.
package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/phenobase/fieldstore/internal/datastore"
	"github.com/phenobase/fieldstore/internal/errors"
	"github.com/phenobase/fieldstore/internal/logging"
	"github.com/phenobase/fieldstore/internal/objectstore"
	"github.com/phenobase/fieldstore/internal/observability/metrics"
	"github.com/phenobase/fieldstore/internal/record"
)

// Filters narrows a search. Name slices match any of their values; zero
// values match everything. At least one filter must be set.
type Filters struct {
	Kind        record.Kind
	Experiments []string
	Seasons     []string
	Sites       []string
	Datasets    []string
	Entities    []string
	// Collection date bounds, both inclusive, format 2006-01-02.
	DateFrom string
	DateTo   string
	// Timestamp window, inclusive start / exclusive end.
	Start time.Time
	End   time.Time
	// PlotNumber narrows plot-scoped kinds to a single plot.
	PlotNumber *int
	// Metadata matches records whose metadata contains every given
	// top-level key with exactly the given value.
	Metadata map[string]any
}

// Validate rejects filters that would scan the entire store, kinds outside
// the closed set, and malformed date bounds.
func (f *Filters) Validate() error {
	if f.Kind != "" && !f.Kind.Valid() {
		return errors.ValidationError("unknown record kind %q", string(f.Kind))
	}
	if f.Kind == "" && len(f.Experiments) == 0 && len(f.Seasons) == 0 &&
		len(f.Sites) == 0 && len(f.Datasets) == 0 && len(f.Entities) == 0 &&
		f.DateFrom == "" && f.DateTo == "" &&
		f.Start.IsZero() && f.End.IsZero() &&
		f.PlotNumber == nil && len(f.Metadata) == 0 {
		return errors.ValidationError("search requires at least one filter")
	}
	for _, date := range []string{f.DateFrom, f.DateTo} {
		if date == "" {
			continue
		}
		if _, err := time.Parse(record.DateLayout, date); err != nil {
			return errors.ValidationError("invalid collection date %q, want YYYY-MM-DD", date)
		}
	}
	if !f.Start.IsZero() && !f.End.IsZero() && !f.End.After(f.Start) {
		return errors.ValidationError("search window end must be after start")
	}
	return nil
}

func (f *Filters) toQuery() datastore.RecordQuery {
	return datastore.RecordQuery{
		Kind:        string(f.Kind),
		Experiments: f.Experiments,
		Seasons:     f.Seasons,
		Sites:       f.Sites,
		Datasets:    f.Datasets,
		Entities:    f.Entities,
		DateFrom:    f.DateFrom,
		DateTo:      f.DateTo,
		Start:       f.Start,
		End:         f.End,
		PlotNumber:  f.PlotNumber,
		Metadata:    f.Metadata,
	}
}

// Result is one streamed row: the denormalized view row plus a time-limited
// download URL when the record has an offloaded file payload.
type Result struct {
	*datastore.RecordView
	DownloadURL string `json:"download_url,omitempty"`
}

// Service executes streamed searches.
type Service struct {
	store         datastore.Interface
	objects       objectstore.Store
	log           *slog.Logger
	metrics       *metrics.IngestMetrics
	presignExpiry time.Duration
}

// NewService creates a search service. presignExpiry bounds the lifetime of
// download URLs attached to file-backed results.
func NewService(store datastore.Interface, objects objectstore.Store, presignExpiry time.Duration) *Service {
	if presignExpiry <= 0 {
		presignExpiry = 15 * time.Minute
	}
	return &Service{
		store:         store,
		objects:       objects,
		log:           logging.ForService("search"),
		presignExpiry: presignExpiry,
	}
}

// SetMetrics attaches query metrics to the service.
func (s *Service) SetMetrics(m *metrics.IngestMetrics) {
	s.metrics = m
}

// Search opens a streamed query. Rows are fetched incrementally as the
// stream advances; the result set is never buffered in full. The caller must
// Close the stream, and may do so before exhausting it.
func (s *Service) Search(ctx context.Context, filters Filters) (*Stream, error) {
	if err := filters.Validate(); err != nil {
		if s.metrics != nil {
			s.metrics.RecordSearch(string(filters.Kind), metrics.StatusError, 0)
		}
		return nil, err
	}

	cursor, err := s.store.OpenRecordCursor(ctx, filters.toQuery())
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordSearch(string(filters.Kind), metrics.StatusError, 0)
		}
		return nil, err
	}

	return &Stream{
		ctx:    ctx,
		svc:    s,
		kind:   string(filters.Kind),
		cursor: cursor,
	}, nil
}

// DownloadURL resolves a time-limited URL for a committed record's file
// payload. Records without a file payload are rejected as invalid input.
func (s *Service) DownloadURL(ctx context.Context, id uint) (string, error) {
	row, err := s.store.GetRecord(ctx, id)
	if err != nil {
		return "", err
	}
	if row.FileKey == "" {
		return "", errors.ValidationError("record %d has no file payload", id)
	}
	return s.objects.PresignedURL(ctx, row.FileKey, s.presignExpiry)
}

// Stream iterates search results. Not safe for concurrent use.
type Stream struct {
	ctx     context.Context
	svc     *Service
	kind    string
	cursor  *datastore.RecordCursor
	current Result
	count   int
	err     error
	closed  bool
}

// Next advances to the next result, reporting whether one is available.
// After Next returns false, Err distinguishes exhaustion from failure.
func (st *Stream) Next() bool {
	if st.err != nil || st.closed {
		return false
	}
	if !st.cursor.Next() {
		st.err = st.cursor.Err()
		return false
	}

	row := st.cursor.Record()
	result := Result{RecordView: row}
	if row.FileKey != "" {
		url, err := st.svc.objects.PresignedURL(st.ctx, row.FileKey, st.svc.presignExpiry)
		if err != nil {
			st.err = err
			return false
		}
		result.DownloadURL = url
	}
	st.current = result
	st.count++
	return true
}

// Result returns the row the stream currently points at. Only valid after a
// Next call that returned true.
func (st *Stream) Result() Result {
	return st.current
}

// Err returns the first failure encountered while streaming, if any.
func (st *Stream) Err() error {
	return st.err
}

// Close releases the underlying cursor. Safe to call more than once; rows
// not yet consumed are abandoned.
func (st *Stream) Close() error {
	if st.closed {
		return nil
	}
	st.closed = true
	if st.svc.metrics != nil {
		status := metrics.StatusSuccess
		if st.err != nil {
			status = metrics.StatusError
		}
		st.svc.metrics.RecordSearch(st.kind, status, st.count)
	}
	return st.cursor.Close()
}
