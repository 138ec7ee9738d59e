// records.go: append-only record store operations.
package datastore

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/phenobase/fieldstore/internal/errors"
)

// InsertRecords bulk-inserts a batch of record rows in a single transaction.
// The composite unique index absorbs duplicate tuples: re-inserting an
// already present tuple neither duplicates the row nor errors. Only the
// identifiers of rows newly created by this call are returned.
//
// The transaction is the sole atomicity mechanism: either every non-duplicate
// row in the batch commits, or the store is left exactly as it was.
func (ds *DataStore) InsertRecords(ctx context.Context, rows []*Record) ([]uint, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	inserted := make([]uint, 0, len(rows))
	err := ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				inserted = append(inserted, row.ID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, dbError(err, "insert_records", "batch_size", len(rows))
	}
	return inserted, nil
}

// FindRecordID looks up a committed row by its deduplication tuple. It is
// how single-record callers recover the identifier of a row that an earlier
// insert already committed.
func (ds *DataStore) FindRecordID(ctx context.Context, row *Record) (uint, error) {
	var existing Record
	err := ds.DB.WithContext(ctx).
		Select("id").
		Where("kind = ? AND timestamp = ? AND collection_date = ? AND dataset_id = ? AND dataset_name = ? AND entity_id = ? AND entity_name = ? AND metadata_hash = ?",
			row.Kind, row.Timestamp, row.CollectionDate,
			row.DatasetID, row.DatasetName,
			row.EntityID, row.EntityName,
			row.MetadataHash).
		First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, errors.NotFoundError("record", row.Kind+"@"+row.Timestamp.String())
		}
		return 0, dbError(err, "find_record_id", "kind", row.Kind)
	}
	return existing.ID, nil
}

// GetRecord retrieves a raw record row by its identifier.
func (ds *DataStore) GetRecord(ctx context.Context, id uint) (*Record, error) {
	var row Record
	if err := ds.DB.WithContext(ctx).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundError("record", itoa(id))
		}
		return nil, dbError(err, "get_record", "record_id", id)
	}
	return &row, nil
}

// GetRecordFromView retrieves a record by identifier through the derived
// view, with hierarchy display names resolved.
func (ds *DataStore) GetRecordFromView(ctx context.Context, id uint) (*RecordView, error) {
	var row RecordView
	if err := ds.DB.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundError("record", itoa(id))
		}
		return nil, dbError(err, "get_record_from_view", "record_id", id)
	}
	return &row, nil
}

// UpdateRecordFields mutates the payload and/or metadata of an existing
// record. Hierarchy coordinates, timestamp and file key are immutable here;
// hierarchy reassignment goes through RepointRecord.
func (ds *DataStore) UpdateRecordFields(ctx context.Context, id uint, payload, metadata map[string]any) error {
	updates := map[string]any{}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return dbError(err, "update_record_fields", "record_id", id)
		}
		updates["payload"] = data
	}
	if metadata != nil {
		data, err := json.Marshal(metadata)
		if err != nil {
			return dbError(err, "update_record_fields", "record_id", id)
		}
		hash, err := HashMetadata(metadata)
		if err != nil {
			return dbError(err, "update_record_fields", "record_id", id)
		}
		updates["metadata"] = data
		updates["metadata_hash"] = hash
	}
	if len(updates) == 0 {
		return nil
	}

	res := ds.DB.WithContext(ctx).Model(&Record{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return dbError(res.Error, "update_record_fields", "record_id", id)
	}
	if res.RowsAffected == 0 {
		return errors.NotFoundError("record", itoa(id))
	}
	return nil
}

// DeleteRecord removes a record row by identifier.
func (ds *DataStore) DeleteRecord(ctx context.Context, id uint) error {
	res := ds.DB.WithContext(ctx).Delete(&Record{}, id)
	if res.Error != nil {
		return dbError(res.Error, "delete_record", "record_id", id)
	}
	if res.RowsAffected == 0 {
		return errors.NotFoundError("record", itoa(id))
	}
	return nil
}

// RepointRecord reassigns a record's hierarchy coordinates to a new, already
// re-validated combination. Callers must run the new tuple through the
// resolver first; this method only applies the reference.
func (ds *DataStore) RepointRecord(ctx context.Context, id uint, ref HierarchyRef) error {
	updates := map[string]any{
		"experiment_id": ref.ExperimentID,
		"season_id":     ref.SeasonID,
		"site_id":       ref.SiteID,
		"dataset_id":    ref.DatasetID,
		"dataset_name":  ref.DatasetName,
		"entity_id":     ref.EntityID,
		"entity_name":   ref.EntityName,
	}
	res := ds.DB.WithContext(ctx).Model(&Record{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return dbError(res.Error, "repoint_record", "record_id", id)
	}
	if res.RowsAffected == 0 {
		return errors.NotFoundError("record", itoa(id))
	}
	return nil
}
