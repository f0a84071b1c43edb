package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dperezm/tracknest/internal/domain"
)

// CreateTrack inserts the track and, when identity is nil, a manual
// identity "manual:{id}" in the same transaction. Every track has at
// least one identity from the moment it exists.
func (db *DB) CreateTrack(track *domain.Track, identity *domain.TrackIdentity) error {
	return db.inTx(func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		track.CreatedAt = now
		track.UpdatedAt = now

		query := `INSERT INTO tracks (
			artists, title, normalized_artists, normalized_title, album, duration_ms,
			isrc, cover_url, genre, bpm, release_date, spotify_added_at, explicit,
			searched_not_found, created_at, updated_at
		) VALUES (
			:artists, :title, :normalized_artists, :normalized_title, :album, :duration_ms,
			:isrc, :cover_url, :genre, :bpm, :release_date, :spotify_added_at, :explicit,
			:searched_not_found, :created_at, :updated_at
		) RETURNING id`

		rows, err := tx.NamedQuery(query, track)
		if err != nil {
			return fmt.Errorf("failed to create track: %w", err)
		}
		if rows.Next() {
			if err := rows.Scan(&track.ID); err != nil {
				rows.Close() //nolint:errcheck // scan already failed
				return fmt.Errorf("failed to scan track id: %w", err)
			}
		}
		if err := rows.Close(); err != nil {
			return err
		}

		if identity == nil {
			identity = &domain.TrackIdentity{
				Provider:        domain.ProviderManual,
				ProviderTrackID: fmt.Sprintf("manual:%d", track.ID),
			}
		}
		identity.TrackID = track.ID
		identity.CreatedAt = now
		return insertIdentity(tx, identity)
	})
}

func (db *DB) GetTrackByID(id int64) (*domain.Track, error) {
	var track domain.Track
	err := db.Get(&track, `SELECT * FROM tracks WHERE id = ?`, id)
	if err != nil {
		return nil, notFoundOr(err, "failed to get track")
	}
	return &track, nil
}

// FindDuplicateTrack resolves an incoming track against the catalog:
// provider identity first, then ISRC, then the normalized (artists, title)
// pair. Returns ErrNotFound when nothing matches.
func (db *DB) FindDuplicateTrack(provider domain.SourceProvider, providerTrackID string, isrc *string, normalizedArtists, normalizedTitle string) (*domain.Track, error) {
	if providerTrackID != "" {
		track, err := db.GetTrackByProviderID(provider, providerTrackID)
		if err == nil {
			return track, nil
		}
		if err != ErrNotFound {
			return nil, err
		}
	}
	if isrc != nil && *isrc != "" {
		var track domain.Track
		err := db.Get(&track, `SELECT * FROM tracks WHERE isrc = ? LIMIT 1`, *isrc)
		if err == nil {
			return &track, nil
		}
		if e := notFoundOr(err, "failed to match isrc"); e != ErrNotFound {
			return nil, e
		}
	}
	var track domain.Track
	err := db.Get(&track,
		`SELECT * FROM tracks WHERE normalized_artists = ? AND normalized_title = ? LIMIT 1`,
		normalizedArtists, normalizedTitle)
	if err != nil {
		return nil, notFoundOr(err, "failed to match normalized pair")
	}
	return &track, nil
}

// TrackFilter narrows ListTracks. Zero values mean no constraint.
type TrackFilter struct {
	Query            string
	MissingOnly      bool
	AcquiredOnly     bool
	SearchedNotFound *bool
	Limit            int
	Offset           int
}

func (db *DB) ListTracks(filter TrackFilter) ([]*domain.Track, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Query != "" {
		where = append(where, `(title LIKE ? OR artists LIKE ? OR album LIKE ?)`)
		term := "%" + filter.Query + "%"
		args = append(args, term, term, term)
	}
	if filter.MissingOnly {
		where = append(where, `id NOT IN (SELECT track_id FROM library_files)`)
	}
	if filter.AcquiredOnly {
		where = append(where, `id IN (SELECT track_id FROM library_files)`)
	}
	if filter.SearchedNotFound != nil {
		where = append(where, `searched_not_found = ?`)
		args = append(args, *filter.SearchedNotFound)
	}

	query := `SELECT * FROM tracks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	var tracks []*domain.Track
	if err := db.Select(&tracks, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	return tracks, nil
}

// UpdateTrackPartial patches whitelisted columns. Normalized columns are
// the caller's responsibility: pass them whenever artists or title change.
func (db *DB) UpdateTrackPartial(id int64, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}

	allowedColumns := map[string]bool{
		"artists":            true,
		"title":              true,
		"normalized_artists": true,
		"normalized_title":   true,
		"album":              true,
		"duration_ms":        true,
		"isrc":               true,
		"cover_url":          true,
		"genre":              true,
		"bpm":                true,
		"release_date":       true,
		"explicit":           true,
		"searched_not_found": true,
	}

	setClauses := make([]string, 0, len(updates))
	args := make([]interface{}, 0, len(updates)+2)
	for col, val := range updates {
		if !allowedColumns[col] {
			return fmt.Errorf("invalid column name: %s", col)
		}
		setClauses = append(setClauses, col+" = ?")
		args = append(args, val)
	}
	args = append(args, time.Now().UTC(), id)

	query := fmt.Sprintf("UPDATE tracks SET %s, updated_at = ? WHERE id = ?", strings.Join(setClauses, ", "))
	result, err := db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update track: %w", err)
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

func (db *DB) SetSearchedNotFound(id int64, value bool) error {
	return db.UpdateTrackPartial(id, map[string]interface{}{"searched_not_found": value})
}

// DeleteTrack removes the track; identities, candidates, downloads,
// library rows and playlist links go with it via ON DELETE CASCADE.
func (db *DB) DeleteTrack(id int64) error {
	result, err := db.Exec(`DELETE FROM tracks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete track: %w", err)
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

func (db *DB) CountTracks() (int, error) {
	var count int
	err := db.Get(&count, `SELECT COUNT(*) FROM tracks`)
	return count, err
}
