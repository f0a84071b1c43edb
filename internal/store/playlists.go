package store

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dperezm/tracknest/internal/domain"
)

// UpsertPlaylist inserts or refreshes a playlist keyed by
// (provider, provider_playlist_id). Selected survives refreshes; the
// sync only updates metadata and the snapshot marker.
func (db *DB) UpsertPlaylist(playlist *domain.Playlist) error {
	now := time.Now().UTC()
	playlist.UpdatedAt = now

	if playlist.ProviderPlaylistID != nil {
		existing, err := db.GetPlaylistByProviderID(playlist.Provider, *playlist.ProviderPlaylistID)
		if err == nil {
			_, err = db.Exec(
				`UPDATE playlists SET name = ?, owner = ?, snapshot = ?, source_account_id = ?, updated_at = ? WHERE id = ?`,
				playlist.Name, playlist.Owner, playlist.Snapshot, playlist.SourceAccountID, now, existing.ID)
			if err != nil {
				return fmt.Errorf("failed to update playlist: %w", err)
			}
			playlist.ID = existing.ID
			playlist.Selected = existing.Selected
			playlist.CreatedAt = existing.CreatedAt
			return nil
		}
		if err != ErrNotFound {
			return err
		}
	}

	playlist.CreatedAt = now
	query := `INSERT INTO playlists (provider, provider_playlist_id, name, owner, snapshot, source_account_id, selected, created_at, updated_at)
		VALUES (:provider, :provider_playlist_id, :name, :owner, :snapshot, :source_account_id, :selected, :created_at, :updated_at)
		RETURNING id`
	rows, err := db.NamedQuery(query, playlist)
	if err != nil {
		return fmt.Errorf("failed to create playlist: %w", err)
	}
	defer rows.Close() //nolint:errcheck // deferred cleanup
	if rows.Next() {
		return rows.Scan(&playlist.ID)
	}
	return rows.Err()
}

func (db *DB) GetPlaylistByID(id int64) (*domain.Playlist, error) {
	var playlist domain.Playlist
	err := db.Get(&playlist, `SELECT * FROM playlists WHERE id = ?`, id)
	if err != nil {
		return nil, notFoundOr(err, "failed to get playlist")
	}
	return &playlist, nil
}

func (db *DB) GetPlaylistByProviderID(provider domain.SourceProvider, providerPlaylistID string) (*domain.Playlist, error) {
	var playlist domain.Playlist
	err := db.Get(&playlist,
		`SELECT * FROM playlists WHERE provider = ? AND provider_playlist_id = ?`,
		provider, providerPlaylistID)
	if err != nil {
		return nil, notFoundOr(err, "failed to get playlist by provider id")
	}
	return &playlist, nil
}

func (db *DB) ListPlaylists(selectedOnly bool) ([]*domain.Playlist, error) {
	query := `SELECT * FROM playlists`
	if selectedOnly {
		query += ` WHERE selected = 1`
	}
	query += ` ORDER BY name COLLATE NOCASE ASC`

	var playlists []*domain.Playlist
	if err := db.Select(&playlists, query); err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", err)
	}
	return playlists, nil
}

func (db *DB) SetPlaylistSelected(id int64, selected bool) error {
	result, err := db.Exec(
		`UPDATE playlists SET selected = ?, updated_at = ? WHERE id = ?`,
		selected, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update playlist selection: %w", err)
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

func (db *DB) DeletePlaylist(id int64) error {
	result, err := db.Exec(`DELETE FROM playlists WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
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

// ReplacePlaylistTracks swaps the link set atomically. Tracks themselves
// are never touched; a link removal never deletes a track.
func (db *DB) ReplacePlaylistTracks(playlistID int64, links []domain.PlaylistTrack) error {
	return db.inTx(func(tx *sqlx.Tx) error {
		if _, err := tx.Exec(`DELETE FROM playlist_tracks WHERE playlist_id = ?`, playlistID); err != nil {
			return fmt.Errorf("failed to clear playlist tracks: %w", err)
		}
		for i := range links {
			links[i].PlaylistID = playlistID
			_, err := tx.NamedExec(
				`INSERT INTO playlist_tracks (playlist_id, track_id, position, added_at)
				 VALUES (:playlist_id, :track_id, :position, :added_at)`,
				&links[i])
			if err != nil {
				return fmt.Errorf("failed to link track %d: %w", links[i].TrackID, err)
			}
		}
		return nil
	})
}

// SetSelectedPlaylists marks exactly the given provider playlist ids as
// selected for one account and clears every other playlist it owns.
func (db *DB) SetSelectedPlaylists(accountID int64, providerPlaylistIDs []string) error {
	return db.inTx(func(tx *sqlx.Tx) error {
		if _, err := tx.Exec(
			`UPDATE playlists SET selected = 0, updated_at = ? WHERE source_account_id = ?`,
			time.Now().UTC(), accountID); err != nil {
			return fmt.Errorf("failed to clear playlist selection: %w", err)
		}
		for _, pid := range providerPlaylistIDs {
			if _, err := tx.Exec(
				`UPDATE playlists SET selected = 1, updated_at = ? WHERE source_account_id = ? AND provider_playlist_id = ?`,
				time.Now().UTC(), accountID, pid); err != nil {
				return fmt.Errorf("failed to select playlist %s: %w", pid, err)
			}
		}
		return nil
	})
}

// ListPlaylistsForAccount returns the account's playlists, optionally
// only the selected ones.
func (db *DB) ListPlaylistsForAccount(accountID int64, selectedOnly bool) ([]*domain.Playlist, error) {
	query := `SELECT * FROM playlists WHERE source_account_id = ?`
	if selectedOnly {
		query += ` AND selected = 1`
	}
	query += ` ORDER BY name COLLATE NOCASE ASC`

	var playlists []*domain.Playlist
	if err := db.Select(&playlists, query, accountID); err != nil {
		return nil, fmt.Errorf("failed to list account playlists: %w", err)
	}
	return playlists, nil
}

// LatestTrackAddedAt returns the newest added_at across every playlist
// link for the track, or nil when no link carries one.
func (db *DB) LatestTrackAddedAt(trackID int64) (*time.Time, error) {
	var added *time.Time
	err := db.Get(&added,
		`SELECT MAX(added_at) FROM playlist_tracks WHERE track_id = ? AND added_at IS NOT NULL`,
		trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest added_at: %w", err)
	}
	return added, nil
}

func (db *DB) ListPlaylistTracks(playlistID int64) ([]*domain.Track, error) {
	var tracks []*domain.Track
	err := db.Select(&tracks,
		`SELECT t.* FROM tracks t
		 JOIN playlist_tracks pt ON pt.track_id = t.id
		 WHERE pt.playlist_id = ?
		 ORDER BY pt.position ASC, pt.id ASC`,
		playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to list playlist tracks: %w", err)
	}
	return tracks, nil
}
