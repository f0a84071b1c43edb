package store

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

type migration struct {
	version     int
	description string
	statements  []string
}

// migrations run once each, in version order, after the base schema is
// applied. The base schema already reflects every migration below; the
// statements exist for databases created before the column was added.
var migrations = []migration{
	{
		version:     1,
		description: "add searched_not_found to tracks",
		statements: []string{
			`ALTER TABLE tracks ADD COLUMN searched_not_found BOOLEAN NOT NULL DEFAULT 0`,
		},
	},
	{
		version:     2,
		description: "add score_breakdown to search_candidates",
		statements: []string{
			`ALTER TABLE search_candidates ADD COLUMN score_breakdown TEXT`,
		},
	},
	{
		version:     3,
		description: "add checksum to downloads and library_files",
		statements: []string{
			`ALTER TABLE downloads ADD COLUMN checksum TEXT`,
			`ALTER TABLE library_files ADD COLUMN checksum TEXT`,
		},
	},
}

func (db *DB) applyMigrations() error {
	for _, m := range migrations {
		applied, err := db.migrationApplied(m.version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		err = db.inTx(func(tx *sqlx.Tx) error {
			for _, stmt := range m.statements {
				if _, err := tx.Exec(stmt); err != nil {
					// Fresh databases already carry the column from Schema.
					if isDuplicateColumn(err) {
						continue
					}
					return fmt.Errorf("migration %d: %w", m.version, err)
				}
			}
			_, err := tx.Exec(
				`INSERT INTO schema_migrations (version, description) VALUES (?, ?)`,
				m.version, m.description,
			)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) migrationApplied(version int) (bool, error) {
	var count int
	err := db.Get(&count, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version)
	if err != nil {
		return false, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	return count > 0, nil
}

func isDuplicateColumn(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}
