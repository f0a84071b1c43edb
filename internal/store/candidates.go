package store

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dperezm/tracknest/internal/domain"
)

// ReplaceCandidates swaps the candidate set for a track atomically. A
// fresh search invalidates whatever was chosen before.
func (db *DB) ReplaceCandidates(trackID int64, candidates []domain.SearchCandidate) error {
	return db.inTx(func(tx *sqlx.Tx) error {
		if _, err := tx.Exec(`DELETE FROM search_candidates WHERE track_id = ?`, trackID); err != nil {
			return fmt.Errorf("failed to clear candidates: %w", err)
		}
		now := time.Now().UTC()
		for i := range candidates {
			candidates[i].TrackID = trackID
			candidates[i].CreatedAt = now
			rows, err := tx.NamedQuery(
				`INSERT INTO search_candidates (track_id, provider, external_id, url, title, channel, duration_sec, score, chosen, score_breakdown, created_at)
				 VALUES (:track_id, :provider, :external_id, :url, :title, :channel, :duration_sec, :score, :chosen, :score_breakdown, :created_at)
				 RETURNING id`,
				&candidates[i])
			if err != nil {
				return fmt.Errorf("failed to insert candidate: %w", err)
			}
			if rows.Next() {
				if err := rows.Scan(&candidates[i].ID); err != nil {
					rows.Close() //nolint:errcheck // scan already failed
					return err
				}
			}
			if err := rows.Close(); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListCandidates returns candidates best first. Equal scores keep their
// insertion order, which is the search result order.
func (db *DB) ListCandidates(trackID int64) ([]*domain.SearchCandidate, error) {
	var candidates []*domain.SearchCandidate
	err := db.Select(&candidates,
		`SELECT * FROM search_candidates WHERE track_id = ? ORDER BY score DESC, id ASC`,
		trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	return candidates, nil
}

func (db *DB) GetCandidateByID(id int64) (*domain.SearchCandidate, error) {
	var candidate domain.SearchCandidate
	err := db.Get(&candidate, `SELECT * FROM search_candidates WHERE id = ?`, id)
	if err != nil {
		return nil, notFoundOr(err, "failed to get candidate")
	}
	return &candidate, nil
}

// ChooseCandidate marks one candidate chosen and clears every other
// chosen flag for the track in the same transaction, so at most one
// candidate per track is ever chosen.
func (db *DB) ChooseCandidate(trackID, candidateID int64) error {
	return db.inTx(func(tx *sqlx.Tx) error {
		result, err := tx.Exec(
			`UPDATE search_candidates SET chosen = 1 WHERE id = ? AND track_id = ?`,
			candidateID, trackID)
		if err != nil {
			return fmt.Errorf("failed to choose candidate: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrNotFound
		}
		_, err = tx.Exec(
			`UPDATE search_candidates SET chosen = 0 WHERE track_id = ? AND id != ?`,
			trackID, candidateID)
		return err
	})
}

func (db *DB) DeleteCandidate(id int64) error {
	result, err := db.Exec(`DELETE FROM search_candidates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete candidate: %w", err)
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

// GetChosenCandidate returns the chosen candidate for a track, or
// ErrNotFound when none is chosen.
func (db *DB) GetChosenCandidate(trackID int64) (*domain.SearchCandidate, error) {
	var candidate domain.SearchCandidate
	err := db.Get(&candidate,
		`SELECT * FROM search_candidates WHERE track_id = ? AND chosen = 1 LIMIT 1`,
		trackID)
	if err != nil {
		return nil, notFoundOr(err, "failed to get chosen candidate")
	}
	return &candidate, nil
}
