// manage.go: database migrations and derived view management.
package datastore

import (
	"fmt"
	"log"

	"gorm.io/gorm"
)

// recordViewSelect is the body of the derived record view: raw record rows
// denormalized with their hierarchy display names. Because it is a plain SQL
// view it is computed at read time, so reads reflect appended rows with no
// manual refresh, in contrast to the valid_combinations dimension table.
const recordViewSelect = `SELECT
	r.id, r.kind, r.timestamp, r.collection_date,
	r.dataset_id, r.dataset_name,
	r.entity_id, r.entity_name,
	r.experiment_id, COALESCE(e.name, '') AS experiment_name,
	r.season_id, COALESCE(se.name, '') AS season_name,
	r.site_id, COALESCE(si.name, '') AS site_name,
	r.plot_number, r.plot_row, r.plot_column,
	r.payload, r.metadata, r.file_key
FROM records r
LEFT JOIN experiments e ON e.id = r.experiment_id
LEFT JOIN seasons se ON se.id = r.season_id
LEFT JOIN sites si ON si.id = r.site_id`

// performAutoMigration automates database migrations with error handling.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(
		&Experiment{},
		&Season{},
		&Site{},
		&Entity{},
		&Dataset{},
		&EntityExperiment{},
		&ValidCombination{},
		&Record{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)
	}

	if err := createRecordView(db); err != nil {
		return fmt.Errorf("failed to create record view on %s database: %w", dbType, err)
	}

	if debug {
		log.Printf("%s database connection initialized: %s", dbType, connectionInfo)
	}

	return nil
}

// createRecordView creates or replaces the derived record view using
// database-specific DDL.
func createRecordView(db *gorm.DB) error {
	var ddl string
	switch db.Dialector.Name() {
	case "sqlite":
		// SQLite has no CREATE OR REPLACE VIEW; drop and recreate so schema
		// changes propagate.
		if err := db.Exec(`DROP VIEW IF EXISTS record_view`).Error; err != nil {
			return err
		}
		ddl = `CREATE VIEW record_view AS ` + recordViewSelect
	case "mysql":
		ddl = `CREATE OR REPLACE VIEW record_view AS ` + recordViewSelect
	default:
		return fmt.Errorf("unsupported database dialect %q", db.Dialector.Name())
	}
	return db.Exec(ddl).Error
}
