package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// A migration moves the schema one version forward. The list is append-only;
// entries that have shipped never change.
type migration struct {
	version int
	note    string
	apply   func(ctx context.Context, tx *sql.Tx) error
}

var migrations = []migration{
	{version: 1, note: "base schema", apply: applyBaseSchema},
	{version: 2, note: "document domain and object_type columns", apply: applyDocumentTypology},
}

// The base schema ships in schemaSQL and runs before the migration loop, so
// version 1 only records that starting point.
func applyBaseSchema(ctx context.Context, tx *sql.Tx) error { return nil }

// applyDocumentTypology backfills the domain and object_type columns on
// databases created before they joined the base schema. Fresh databases
// already carry both, so a failing ALTER just means there is nothing to do.
func applyDocumentTypology(ctx context.Context, tx *sql.Tx) error {
	for _, stmt := range []string{
		"ALTER TABLE documents ADD COLUMN domain TEXT NOT NULL DEFAULT ''",
		"ALTER TABLE documents ADD COLUMN object_type TEXT NOT NULL DEFAULT ''",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			slog.Debug("store: column already present", "sql", stmt, "error", err)
		}
	}
	return nil
}

// Migrate brings the schema up to the newest version. Every pending
// migration commits together with its schema_version record, so a failure
// leaves the database at the last completed version.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		slog.Info("store: applying migration", "version", m.version, "note", m.note)
		err := s.inTx(ctx, func(tx *sql.Tx) error {
			if err := m.apply(ctx, tx); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_version (version, description) VALUES (?, ?)",
				m.version, m.note)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.note, err)
		}
	}
	return nil
}
