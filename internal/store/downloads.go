package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dperezm/tracknest/internal/domain"
)

// ErrDownloadActive is returned when a track already has a queued or
// running download.
var ErrDownloadActive = errors.New("download already active for track")

// CreateDownload inserts a queued job, enforcing at most one non-terminal
// download per track inside the transaction.
func (db *DB) CreateDownload(download *domain.Download) error {
	return db.inTx(func(tx *sqlx.Tx) error {
		var count int
		err := tx.Get(&count,
			`SELECT COUNT(*) FROM downloads WHERE track_id = ? AND status IN ('queued', 'running')`,
			download.TrackID)
		if err != nil {
			return fmt.Errorf("failed to check active downloads: %w", err)
		}
		if count > 0 {
			return ErrDownloadActive
		}

		download.Status = domain.DownloadStatusQueued
		download.CreatedAt = time.Now().UTC()
		rows, err := tx.NamedQuery(
			`INSERT INTO downloads (track_id, candidate_id, provider, status, created_at)
			 VALUES (:track_id, :candidate_id, :provider, :status, :created_at)
			 RETURNING id`,
			download)
		if err != nil {
			return fmt.Errorf("failed to create download: %w", err)
		}
		defer rows.Close() //nolint:errcheck // deferred cleanup
		if rows.Next() {
			return rows.Scan(&download.ID)
		}
		return rows.Err()
	})
}

// InsertTerminalDownload records a short-circuited job directly in a
// terminal state. Dedup hits write 'already' rows without ever queueing.
func (db *DB) InsertTerminalDownload(download *domain.Download) error {
	if !download.Status.Terminal() {
		return fmt.Errorf("terminal insert requires a terminal status, got %s", download.Status)
	}
	now := time.Now().UTC()
	download.CreatedAt = now
	download.FinishedAt = &now

	rows, err := db.NamedQuery(
		`INSERT INTO downloads (track_id, candidate_id, provider, status, filepath, error_message, created_at, finished_at)
		 VALUES (:track_id, :candidate_id, :provider, :status, :filepath, :error_message, :created_at, :finished_at)
		 RETURNING id`,
		download)
	if err != nil {
		return fmt.Errorf("failed to insert terminal download: %w", err)
	}
	defer rows.Close() //nolint:errcheck // deferred cleanup
	if rows.Next() {
		return rows.Scan(&download.ID)
	}
	return rows.Err()
}

func (db *DB) GetDownloadByID(id int64) (*domain.Download, error) {
	var download domain.Download
	err := db.Get(&download, `SELECT * FROM downloads WHERE id = ?`, id)
	if err != nil {
		return nil, notFoundOr(err, "failed to get download")
	}
	return &download, nil
}

// GetActiveDownload returns the queued or running download for a track.
func (db *DB) GetActiveDownload(trackID int64) (*domain.Download, error) {
	var download domain.Download
	err := db.Get(&download,
		`SELECT * FROM downloads WHERE track_id = ? AND status IN ('queued', 'running') LIMIT 1`,
		trackID)
	if err != nil {
		return nil, notFoundOr(err, "failed to get active download")
	}
	return &download, nil
}

// MarkDownloadRunning flips a queued job to running. Returns ErrNotFound
// when the job was cancelled or finished in the meantime, so a stale
// queue entry is dropped instead of re-run.
func (db *DB) MarkDownloadRunning(id int64) error {
	result, err := db.Exec(
		`UPDATE downloads SET status = 'running', started_at = ? WHERE id = ? AND status = 'queued'`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark download running: %w", err)
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

// DownloadResult carries the terminal fields written when a job finishes.
type DownloadResult struct {
	Status        domain.DownloadStatus
	CandidateID   *int64
	Filepath      *string
	Format        *string
	FilesizeBytes *int64
	Checksum      *string
	ErrorMessage  *string
}

func (db *DB) FinishDownload(id int64, result DownloadResult) error {
	if !result.Status.Terminal() {
		return fmt.Errorf("finish requires a terminal status, got %s", result.Status)
	}
	res, err := db.Exec(
		`UPDATE downloads SET status = ?, candidate_id = COALESCE(?, candidate_id), filepath = ?, format = ?,
		 filesize_bytes = ?, checksum = ?, error_message = ?, finished_at = ?
		 WHERE id = ?`,
		result.Status, result.CandidateID, result.Filepath, result.Format,
		result.FilesizeBytes, result.Checksum, result.ErrorMessage, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to finish download: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// CancelQueuedDownload flips a queued job straight to skipped. Running
// jobs are not interrupted.
func (db *DB) CancelQueuedDownload(id int64) error {
	result, err := db.Exec(
		`UPDATE downloads SET status = 'skipped', error_message = 'cancelled', finished_at = ? WHERE id = ? AND status = 'queued'`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to cancel download: %w", err)
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

// CancelAllQueued skips every queued job and reports how many were hit.
func (db *DB) CancelAllQueued() (int64, error) {
	result, err := db.Exec(
		`UPDATE downloads SET status = 'skipped', error_message = 'cancelled', finished_at = ? WHERE status = 'queued'`,
		time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to cancel queued downloads: %w", err)
	}
	return result.RowsAffected()
}

// ResetRunningDownloads requeues jobs left running by a crash. Called
// once on boot before the scheduler starts.
func (db *DB) ResetRunningDownloads() ([]int64, error) {
	var ids []int64
	err := db.Select(&ids, `SELECT id FROM downloads WHERE status = 'running' ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list running downloads: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	_, err = db.Exec(`UPDATE downloads SET status = 'queued', started_at = NULL WHERE status = 'running'`)
	if err != nil {
		return nil, fmt.Errorf("failed to reset running downloads: %w", err)
	}
	return ids, nil
}

// ListQueuedDownloads returns queued jobs oldest first, for requeueing
// on boot.
func (db *DB) ListQueuedDownloads() ([]*domain.Download, error) {
	var downloads []*domain.Download
	err := db.Select(&downloads, `SELECT * FROM downloads WHERE status = 'queued' ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list queued downloads: %w", err)
	}
	return downloads, nil
}

func (db *DB) ListDownloads(status string, limit int) ([]*domain.Download, error) {
	query := `SELECT * FROM downloads`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var downloads []*domain.Download
	if err := db.Select(&downloads, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list downloads: %w", err)
	}
	return downloads, nil
}

func (db *DB) CountDownloadsByStatus() (map[domain.DownloadStatus]int, error) {
	rows, err := db.Queryx(`SELECT status, COUNT(*) AS n FROM downloads GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count downloads: %w", err)
	}
	defer rows.Close() //nolint:errcheck // deferred cleanup

	counts := make(map[domain.DownloadStatus]int)
	for rows.Next() {
		var (
			status domain.DownloadStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// TrimDownloadHistory deletes terminal rows beyond the most recent keep.
// Queued and running rows are never trimmed.
func (db *DB) TrimDownloadHistory(keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	result, err := db.Exec(
		`DELETE FROM downloads WHERE status IN ('done', 'failed', 'skipped', 'already')
		 AND id NOT IN (
			SELECT id FROM downloads WHERE status IN ('done', 'failed', 'skipped', 'already')
			ORDER BY finished_at DESC, id DESC LIMIT ?
		 )`,
		keep)
	if err != nil {
		return 0, fmt.Errorf("failed to trim download history: %w", err)
	}
	return result.RowsAffected()
}
