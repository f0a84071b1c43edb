package store

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/dperezm/tracknest/internal/domain"
)

// PlaylistRef is a playlist membership entry for one track.
type PlaylistRef struct {
	TrackID    int64  `json:"-" db:"track_id"`
	PlaylistID int64  `json:"playlist_id" db:"playlist_id"`
	Name       string `json:"name" db:"name"`
}

// ListTrackMemberships resolves playlist membership for a batch of tracks
// in one query.
func (db *DB) ListTrackMemberships(trackIDs []int64) (map[int64][]PlaylistRef, error) {
	out := make(map[int64][]PlaylistRef, len(trackIDs))
	if len(trackIDs) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(
		`SELECT pt.track_id, p.id AS playlist_id, p.name
		 FROM playlist_tracks pt
		 JOIN playlists p ON p.id = pt.playlist_id
		 WHERE pt.track_id IN (?)
		 ORDER BY p.name COLLATE NOCASE ASC`,
		trackIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build membership query: %w", err)
	}
	var refs []PlaylistRef
	if err := db.Select(&refs, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	for _, ref := range refs {
		out[ref.TrackID] = append(out[ref.TrackID], ref)
	}
	return out, nil
}

// ListTracksReadyForDownload returns tracks with a chosen candidate and
// no library file, the set the bulk path would download next.
func (db *DB) ListTracksReadyForDownload() ([]*domain.Track, error) {
	var tracks []*domain.Track
	err := db.Select(&tracks,
		`SELECT * FROM tracks
		 WHERE id IN (SELECT track_id FROM search_candidates WHERE chosen = 1)
		   AND id NOT IN (SELECT track_id FROM library_files)
		 ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ready tracks: %w", err)
	}
	return tracks, nil
}

// PlaylistStats is acquisition progress for one playlist.
type PlaylistStats struct {
	PlaylistID     int64  `json:"playlist_id" db:"playlist_id"`
	Name           string `json:"name" db:"name"`
	Selected       bool   `json:"selected" db:"selected"`
	TotalTracks    int    `json:"total_tracks" db:"total_tracks"`
	AcquiredTracks int    `json:"acquired_tracks" db:"acquired_tracks"`
	NotFoundTracks int    `json:"not_found_tracks" db:"not_found_tracks"`
}

func (db *DB) ListPlaylistStats(selectedOnly bool) ([]PlaylistStats, error) {
	query := `SELECT p.id AS playlist_id, p.name, p.selected,
		COUNT(pt.id) AS total_tracks,
		COUNT(lf.track_id) AS acquired_tracks,
		SUM(CASE WHEN t.searched_not_found THEN 1 ELSE 0 END) AS not_found_tracks
	 FROM playlists p
	 LEFT JOIN playlist_tracks pt ON pt.playlist_id = p.id
	 LEFT JOIN tracks t ON t.id = pt.track_id
	 LEFT JOIN (SELECT DISTINCT track_id FROM library_files) lf ON lf.track_id = pt.track_id`
	if selectedOnly {
		query += ` WHERE p.selected = 1`
	}
	query += ` GROUP BY p.id ORDER BY p.name COLLATE NOCASE ASC`

	var stats []PlaylistStats
	if err := db.Select(&stats, query); err != nil {
		return nil, fmt.Errorf("failed to list playlist stats: %w", err)
	}
	return stats, nil
}

// CandidateWithTrack pairs a candidate with its track's display fields.
type CandidateWithTrack struct {
	domain.SearchCandidate
	TrackArtists string `json:"track_artists" db:"track_artists"`
	TrackTitle   string `json:"track_title" db:"track_title"`
}

// ListCandidatesEnriched returns candidates joined with track info,
// best first. trackID 0 means every track.
func (db *DB) ListCandidatesEnriched(trackID int64) ([]CandidateWithTrack, error) {
	query := `SELECT c.*, t.artists AS track_artists, t.title AS track_title
		 FROM search_candidates c
		 JOIN tracks t ON t.id = c.track_id`
	var args []interface{}
	if trackID > 0 {
		query += ` WHERE c.track_id = ?`
		args = append(args, trackID)
	}
	query += ` ORDER BY c.track_id ASC, c.score DESC, c.id ASC`

	var candidates []CandidateWithTrack
	if err := db.Select(&candidates, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list enriched candidates: %w", err)
	}
	return candidates, nil
}

// DownloadWithTrack pairs a download row with its track's display fields.
type DownloadWithTrack struct {
	domain.Download
	TrackArtists string `json:"track_artists" db:"track_artists"`
	TrackTitle   string `json:"track_title" db:"track_title"`
}

func (db *DB) ListDownloadsWithTracks(status string, limit int) ([]DownloadWithTrack, error) {
	query := `SELECT d.*, t.artists AS track_artists, t.title AS track_title
		 FROM downloads d
		 JOIN tracks t ON t.id = d.track_id`
	var args []interface{}
	if status != "" {
		query += ` WHERE d.status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY d.created_at DESC, d.id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var downloads []DownloadWithTrack
	if err := db.Select(&downloads, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list downloads with tracks: %w", err)
	}
	return downloads, nil
}
