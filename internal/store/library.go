package store

import (
	"fmt"
	"time"

	"github.com/dperezm/tracknest/internal/domain"
)

// UpsertLibraryFile inserts or refreshes a library row keyed by filepath.
// A path can only belong to one track; re-acquiring moves it.
func (db *DB) UpsertLibraryFile(file *domain.LibraryFile) error {
	now := time.Now().UTC()
	file.CreatedAt = now

	rows, err := db.NamedQuery(
		`INSERT INTO library_files (track_id, filepath, file_size, file_mtime, checksum, container, created_at)
		 VALUES (:track_id, :filepath, :file_size, :file_mtime, :checksum, :container, :created_at)
		 ON CONFLICT (filepath) DO UPDATE SET
			track_id = excluded.track_id,
			file_size = excluded.file_size,
			file_mtime = excluded.file_mtime,
			checksum = excluded.checksum,
			container = excluded.container
		 RETURNING id`,
		file)
	if err != nil {
		return fmt.Errorf("failed to upsert library file: %w", err)
	}
	defer rows.Close() //nolint:errcheck // deferred cleanup
	if rows.Next() {
		return rows.Scan(&file.ID)
	}
	return rows.Err()
}

func (db *DB) GetLibraryFileByTrackID(trackID int64) (*domain.LibraryFile, error) {
	var file domain.LibraryFile
	err := db.Get(&file,
		`SELECT * FROM library_files WHERE track_id = ? ORDER BY id DESC LIMIT 1`, trackID)
	if err != nil {
		return nil, notFoundOr(err, "failed to get library file")
	}
	return &file, nil
}

func (db *DB) GetLibraryFileByID(id int64) (*domain.LibraryFile, error) {
	var file domain.LibraryFile
	err := db.Get(&file, `SELECT * FROM library_files WHERE id = ?`, id)
	if err != nil {
		return nil, notFoundOr(err, "failed to get library file")
	}
	return &file, nil
}

func (db *DB) GetLibraryFileByPath(filepath string) (*domain.LibraryFile, error) {
	var file domain.LibraryFile
	err := db.Get(&file, `SELECT * FROM library_files WHERE filepath = ?`, filepath)
	if err != nil {
		return nil, notFoundOr(err, "failed to get library file by path")
	}
	return &file, nil
}

func (db *DB) ListLibraryFiles() ([]*domain.LibraryFile, error) {
	var files []*domain.LibraryFile
	err := db.Select(&files, `SELECT * FROM library_files ORDER BY filepath ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list library files: %w", err)
	}
	return files, nil
}

func (db *DB) DeleteLibraryFilesByTrackID(trackID int64) error {
	_, err := db.Exec(`DELETE FROM library_files WHERE track_id = ?`, trackID)
	if err != nil {
		return fmt.Errorf("failed to delete library files: %w", err)
	}
	return nil
}

func (db *DB) DeleteLibraryFileByID(id int64) error {
	result, err := db.Exec(`DELETE FROM library_files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete library file: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) DeleteLibraryFileByPath(filepath string) error {
	result, err := db.Exec(`DELETE FROM library_files WHERE filepath = ?`, filepath)
	if err != nil {
		return fmt.Errorf("failed to delete library file: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// IsTrackAcquired reports whether the track has at least one library row.
func (db *DB) IsTrackAcquired(trackID int64) (bool, error) {
	var count int
	err := db.Get(&count, `SELECT COUNT(*) FROM library_files WHERE track_id = ?`, trackID)
	return count > 0, err
}
