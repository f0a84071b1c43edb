package domain

import (
	"time"
)

// SourceProvider identifies where a track or playlist originated.
type SourceProvider string

const (
	ProviderSpotify SourceProvider = "spotify"
	ProviderYouTube SourceProvider = "youtube"
	ProviderManual  SourceProvider = "manual"
)

// SearchProvider identifies where a search candidate was found.
type SearchProvider string

const (
	SearchProviderYouTube SearchProvider = "youtube"
	SearchProviderYTMusic SearchProvider = "ytmusic"
	SearchProviderOther   SearchProvider = "other"
)

// DownloadStatus is the closed set of download job states.
type DownloadStatus string

const (
	DownloadStatusQueued  DownloadStatus = "queued"
	DownloadStatusRunning DownloadStatus = "running"
	DownloadStatusDone    DownloadStatus = "done"
	DownloadStatusFailed  DownloadStatus = "failed"
	DownloadStatusSkipped DownloadStatus = "skipped"
	DownloadStatusAlready DownloadStatus = "already"
)

// Terminal reports whether the status is a final state. Running and queued
// rows are never trimmed by the history sweep.
func (s DownloadStatus) Terminal() bool {
	switch s {
	case DownloadStatusDone, DownloadStatusFailed, DownloadStatusSkipped, DownloadStatusAlready:
		return true
	}
	return false
}

// Track is the curated reference entity everything else hangs off.
type Track struct {
	ID                int64          `json:"id" db:"id"`
	Artists           string         `json:"artists" db:"artists"`
	Title             string         `json:"title" db:"title"`
	NormalizedArtists string         `json:"normalized_artists" db:"normalized_artists"`
	NormalizedTitle   string         `json:"normalized_title" db:"normalized_title"`
	Album             *string        `json:"album,omitempty" db:"album"`
	DurationMS        *int           `json:"duration_ms,omitempty" db:"duration_ms"`
	ISRC              *string        `json:"isrc,omitempty" db:"isrc"`
	CoverURL          *string        `json:"cover_url,omitempty" db:"cover_url"`
	Genre             *string        `json:"genre,omitempty" db:"genre"`
	BPM               *int           `json:"bpm,omitempty" db:"bpm"`
	ReleaseDate       *string        `json:"release_date,omitempty" db:"release_date"`
	SpotifyAddedAt    *time.Time     `json:"spotify_added_at,omitempty" db:"spotify_added_at"`
	Explicit          bool           `json:"explicit" db:"explicit"`
	SearchedNotFound  bool           `json:"searched_not_found" db:"searched_not_found"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

// TrackIdentity is a stable reference to a track in an external catalog.
// Every track has at least one identity; a manual one is created with the track.
type TrackIdentity struct {
	ID              int64          `json:"id" db:"id"`
	TrackID         int64          `json:"track_id" db:"track_id"`
	Provider        SourceProvider `json:"provider" db:"provider"`
	ProviderTrackID string         `json:"provider_track_id" db:"provider_track_id"`
	ProviderURL     *string        `json:"provider_url,omitempty" db:"provider_url"`
	Fingerprint     *string        `json:"fingerprint,omitempty" db:"fingerprint"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
}

// Playlist mirrors an external (or manual) playlist.
type Playlist struct {
	ID                 int64          `json:"id" db:"id"`
	Provider           SourceProvider `json:"provider" db:"provider"`
	ProviderPlaylistID *string        `json:"provider_playlist_id,omitempty" db:"provider_playlist_id"`
	Name               string         `json:"name" db:"name"`
	Owner              *string        `json:"owner,omitempty" db:"owner"`
	Snapshot           *string        `json:"snapshot,omitempty" db:"snapshot"`
	SourceAccountID    *int64         `json:"source_account_id,omitempty" db:"source_account_id"`
	Selected           bool           `json:"selected" db:"selected"`
	CreatedAt          time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at" db:"updated_at"`
}

// PlaylistTrack is a link record; deleting it never cascades to the track.
type PlaylistTrack struct {
	ID         int64      `json:"id" db:"id"`
	PlaylistID int64      `json:"playlist_id" db:"playlist_id"`
	TrackID    int64      `json:"track_id" db:"track_id"`
	Position   *int       `json:"position,omitempty" db:"position"`
	AddedAt    *time.Time `json:"added_at,omitempty" db:"added_at"`
}

// SearchCandidate is a potential audio source for a track.
// At most one candidate per track is chosen.
type SearchCandidate struct {
	ID             int64          `json:"id" db:"id"`
	TrackID        int64          `json:"track_id" db:"track_id"`
	Provider       SearchProvider `json:"provider" db:"provider"`
	ExternalID     string         `json:"external_id" db:"external_id"`
	URL            string         `json:"url" db:"url"`
	Title          string         `json:"title" db:"title"`
	Channel        *string        `json:"channel,omitempty" db:"channel"`
	DurationSec    *int           `json:"duration_sec,omitempty" db:"duration_sec"`
	Score          float64        `json:"score" db:"score"`
	Chosen         bool           `json:"chosen" db:"chosen"`
	ScoreBreakdown *string        `json:"score_breakdown,omitempty" db:"score_breakdown"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// Download is one acquisition job for a track.
type Download struct {
	ID            int64          `json:"id" db:"id"`
	TrackID       int64          `json:"track_id" db:"track_id"`
	CandidateID   *int64         `json:"candidate_id,omitempty" db:"candidate_id"`
	Provider      string         `json:"provider" db:"provider"`
	Status        DownloadStatus `json:"status" db:"status"`
	Filepath      *string        `json:"filepath,omitempty" db:"filepath"`
	Format        *string        `json:"format,omitempty" db:"format"`
	FilesizeBytes *int64         `json:"filesize_bytes,omitempty" db:"filesize_bytes"`
	Checksum      *string        `json:"checksum,omitempty" db:"checksum"`
	ErrorMessage  *string        `json:"error_message,omitempty" db:"error_message"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	StartedAt     *time.Time     `json:"started_at,omitempty" db:"started_at"`
	FinishedAt    *time.Time     `json:"finished_at,omitempty" db:"finished_at"`
}

// LibraryFile is the ground truth that a track is already acquired.
type LibraryFile struct {
	ID        int64      `json:"id" db:"id"`
	TrackID   int64      `json:"track_id" db:"track_id"`
	Filepath  string     `json:"filepath" db:"filepath"`
	FileSize  *int64     `json:"file_size,omitempty" db:"file_size"`
	FileMtime *time.Time `json:"file_mtime,omitempty" db:"file_mtime"`
	Checksum  *string    `json:"checksum,omitempty" db:"checksum"`
	Container string     `json:"container" db:"container"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// SourceAccount is a connected external account (currently Spotify).
type SourceAccount struct {
	ID        int64          `json:"id" db:"id"`
	Provider  SourceProvider `json:"provider" db:"provider"`
	Name      string         `json:"name" db:"name"`
	Enabled   bool           `json:"enabled" db:"enabled"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// OAuthToken stores provider credentials. The refresh token is encrypted at
// rest with the process key; plaintext never reaches logs.
type OAuthToken struct {
	ID                    int64          `json:"id" db:"id"`
	SourceAccountID       int64          `json:"source_account_id" db:"source_account_id"`
	Provider              SourceProvider `json:"provider" db:"provider"`
	AccessToken           string         `json:"-" db:"access_token"`
	RefreshTokenEncrypted *string        `json:"-" db:"refresh_token_encrypted"`
	Scope                 *string        `json:"scope,omitempty" db:"scope"`
	TokenType             *string        `json:"token_type,omitempty" db:"token_type"`
	ExpiresAt             *time.Time     `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt             time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at" db:"updated_at"`
}

// OAuthState is a one-shot PKCE state row.
type OAuthState struct {
	ID              int64          `json:"id" db:"id"`
	Provider        SourceProvider `json:"provider" db:"provider"`
	SourceAccountID int64          `json:"source_account_id" db:"source_account_id"`
	State           string         `json:"state" db:"state"`
	CodeVerifier    string         `json:"-" db:"code_verifier"`
	RedirectTo      *string        `json:"redirect_to,omitempty" db:"redirect_to"`
	Consumed        bool           `json:"consumed" db:"consumed"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UsedAt          *time.Time     `json:"used_at,omitempty" db:"used_at"`
}
