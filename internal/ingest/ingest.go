// Package ingest reconciles provider playlists into the catalog. Sync is
// incremental and idempotent, keyed by the provider's snapshot marker.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dperezm/tracknest/internal/domain"
	"github.com/dperezm/tracknest/internal/logger"
	"github.com/dperezm/tracknest/internal/metrics"
	"github.com/dperezm/tracknest/internal/normalize"
	"github.com/dperezm/tracknest/internal/spotify"
	"github.com/dperezm/tracknest/internal/store"
)

// API is the slice of the provider client the ingestor needs. Tests
// substitute a fixture.
type API interface {
	CurrentUserPlaylists(ctx context.Context, accessToken string) ([]spotify.Playlist, error)
	PlaylistSnapshot(ctx context.Context, accessToken, playlistID string) (string, error)
	PlaylistTracks(ctx context.Context, accessToken, playlistID string) ([]spotify.PlaylistTrack, error)
}

// TokenSource yields a valid access token for an account.
type TokenSource interface {
	AccessToken(ctx context.Context, accountID int64) (string, error)
}

// PlaylistSummary reports what one playlist's sync did.
type PlaylistSummary struct {
	PlaylistID         int64   `json:"playlist_id"`
	ProviderPlaylistID *string `json:"provider_playlist_id,omitempty"`
	Name               string  `json:"name"`
	Skipped            bool    `json:"skipped"`
	TracksCreated      int     `json:"tracks_created"`
	TracksUpdated      int     `json:"tracks_updated"`
	LinksCreated       int     `json:"links_created"`
	LinksRemoved       int     `json:"links_removed"`
}

// SyncSummary aggregates a whole sync run.
type SyncSummary struct {
	Playlists          []PlaylistSummary `json:"playlists"`
	TotalTracksCreated int               `json:"total_tracks_created"`
	TotalTracksUpdated int               `json:"total_tracks_updated"`
	TotalLinksCreated  int               `json:"total_links_created"`
	TotalLinksRemoved  int               `json:"total_links_removed"`
}

// Ingestor pulls playlists from a connected account into the catalog.
type Ingestor struct {
	db      *store.DB
	api     API
	tokens  TokenSource
	log     *logger.Logger
	metrics *metrics.Metrics
}

func New(db *store.DB, api API, tokens TokenSource, log *logger.Logger, m *metrics.Metrics) *Ingestor {
	return &Ingestor{
		db:      db,
		api:     api,
		tokens:  tokens,
		log:     log.WithComponent("ingest"),
		metrics: m,
	}
}

// Discover lists the account's playlists at the provider and optionally
// persists them. Discovery never touches the stored snapshot, so a later
// sync still sees the playlist as changed.
func (i *Ingestor) Discover(ctx context.Context, accountID int64, persist bool) ([]*domain.Playlist, error) {
	token, err := i.tokens.AccessToken(ctx, accountID)
	if err != nil {
		return nil, err
	}
	remote, err := i.api.CurrentUserPlaylists(ctx, token)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Playlist, 0, len(remote))
	for _, rp := range remote {
		pid := rp.ID
		playlist := &domain.Playlist{
			Provider:           domain.ProviderSpotify,
			ProviderPlaylistID: &pid,
			Name:               rp.Name,
			Owner:              rp.Owner,
			SourceAccountID:    &accountID,
		}
		if persist {
			if existing, err := i.db.GetPlaylistByProviderID(domain.ProviderSpotify, pid); err == nil {
				playlist.Snapshot = existing.Snapshot
			} else if !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			if err := i.db.UpsertPlaylist(playlist); err != nil {
				return nil, err
			}
		}
		out = append(out, playlist)
	}
	return out, nil
}

// Select marks exactly the given provider playlists as selected for the
// account, clearing the rest.
func (i *Ingestor) Select(accountID int64, providerPlaylistIDs []string) error {
	if _, err := i.db.GetSourceAccountByID(accountID); err != nil {
		return err
	}
	return i.db.SetSelectedPlaylists(accountID, providerPlaylistIDs)
}

// Sync refreshes every selected playlist of the account. Playlists whose
// snapshot is unchanged are skipped unless force is set.
func (i *Ingestor) Sync(ctx context.Context, accountID int64, force bool) (*SyncSummary, error) {
	token, err := i.tokens.AccessToken(ctx, accountID)
	if err != nil {
		i.metrics.SyncRunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	playlists, err := i.db.ListPlaylistsForAccount(accountID, true)
	if err != nil {
		return nil, err
	}

	summary := &SyncSummary{Playlists: make([]PlaylistSummary, 0, len(playlists))}
	for _, playlist := range playlists {
		if playlist.Provider != domain.ProviderSpotify || playlist.ProviderPlaylistID == nil {
			continue
		}
		ps, err := i.syncPlaylist(ctx, token, playlist, force)
		if err != nil {
			i.metrics.SyncRunsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("failed to sync playlist %s: %w", playlist.Name, err)
		}
		summary.Playlists = append(summary.Playlists, *ps)
		summary.TotalTracksCreated += ps.TracksCreated
		summary.TotalTracksUpdated += ps.TracksUpdated
		summary.TotalLinksCreated += ps.LinksCreated
		summary.TotalLinksRemoved += ps.LinksRemoved
	}
	i.metrics.SyncRunsTotal.WithLabelValues("ok").Inc()
	return summary, nil
}

func (i *Ingestor) syncPlaylist(ctx context.Context, token string, playlist *domain.Playlist, force bool) (*PlaylistSummary, error) {
	summary := &PlaylistSummary{
		PlaylistID:         playlist.ID,
		ProviderPlaylistID: playlist.ProviderPlaylistID,
		Name:               playlist.Name,
	}

	snapshot, err := i.api.PlaylistSnapshot(ctx, token, *playlist.ProviderPlaylistID)
	if err != nil {
		return nil, err
	}
	if !force && playlist.Snapshot != nil && *playlist.Snapshot == snapshot {
		summary.Skipped = true
		i.log.Debug("playlist unchanged", "playlist", playlist.Name, "snapshot", snapshot)
		return summary, nil
	}

	items, err := i.api.PlaylistTracks(ctx, token, *playlist.ProviderPlaylistID)
	if err != nil {
		return nil, err
	}

	existing, err := i.db.ListPlaylistTracks(playlist.ID)
	if err != nil {
		return nil, err
	}
	before := make(map[int64]bool, len(existing))
	for _, t := range existing {
		before[t.ID] = true
	}

	links := make([]domain.PlaylistTrack, 0, len(items))
	after := make(map[int64]bool, len(items))
	for idx, item := range items {
		track, created, updated, err := i.resolveTrack(item)
		if err != nil {
			return nil, err
		}
		if created {
			summary.TracksCreated++
			i.metrics.TracksCreated.Inc()
		} else if updated {
			summary.TracksUpdated++
		}
		if !before[track.ID] {
			summary.LinksCreated++
		}
		after[track.ID] = true

		pos := idx
		links = append(links, domain.PlaylistTrack{
			TrackID:  track.ID,
			Position: &pos,
			AddedAt:  item.AddedAt,
		})
	}
	for id := range before {
		if !after[id] {
			summary.LinksRemoved++
		}
	}

	if err := i.db.ReplacePlaylistTracks(playlist.ID, links); err != nil {
		return nil, err
	}
	playlist.Snapshot = &snapshot
	if err := i.db.UpsertPlaylist(playlist); err != nil {
		return nil, err
	}

	i.log.Info("playlist synced", "playlist", playlist.Name,
		"tracks_created", summary.TracksCreated, "links_created", summary.LinksCreated,
		"links_removed", summary.LinksRemoved)
	return summary, nil
}

// resolveTrack maps one provider item onto a catalog track: provider
// identity first, then ISRC, then the normalized pair; a brand new track
// otherwise.
func (i *Ingestor) resolveTrack(item spotify.PlaylistTrack) (track *domain.Track, created, updated bool, err error) {
	artists := strings.Join(item.Track.Artists, ", ")
	norm := normalize.Track(artists, item.Track.Name)

	track, err = i.db.GetTrackByProviderID(domain.ProviderSpotify, item.Track.ID)
	if err == nil {
		updated, err = i.backfillTrack(track, item)
		return track, false, updated, err
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, false, err
	}

	track, err = i.db.FindDuplicateTrack(domain.ProviderSpotify, item.Track.ID,
		item.Track.ISRC, norm.NormalizedArtists, norm.NormalizedTitle)
	if err == nil {
		// Known track from another source: attach the provider identity.
		if err := i.db.AddIdentity(&domain.TrackIdentity{
			TrackID:         track.ID,
			Provider:        domain.ProviderSpotify,
			ProviderTrackID: item.Track.ID,
		}); err != nil {
			return nil, false, false, err
		}
		updated, err = i.backfillTrack(track, item)
		return track, false, true, err
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, false, err
	}

	track = &domain.Track{
		Artists:           norm.CleanArtists,
		Title:             norm.CleanTitle,
		NormalizedArtists: norm.NormalizedArtists,
		NormalizedTitle:   norm.NormalizedTitle,
		Album:             item.Track.Album,
		DurationMS:        item.Track.DurationMS,
		ISRC:              item.Track.ISRC,
		CoverURL:          item.Track.CoverURL,
		ReleaseDate:       item.Track.ReleaseDate,
		SpotifyAddedAt:    item.AddedAt,
		Explicit:          item.Track.Explicit,
	}
	identity := &domain.TrackIdentity{
		Provider:        domain.ProviderSpotify,
		ProviderTrackID: item.Track.ID,
	}
	if err := i.db.CreateTrack(track, identity); err != nil {
		return nil, false, false, err
	}
	return track, true, false, nil
}

// backfillTrack fills catalog gaps from the provider item without ever
// overwriting curated values.
func (i *Ingestor) backfillTrack(track *domain.Track, item spotify.PlaylistTrack) (bool, error) {
	updates := map[string]interface{}{}
	if track.CoverURL == nil && item.Track.CoverURL != nil {
		updates["cover_url"] = *item.Track.CoverURL
	}
	if track.ISRC == nil && item.Track.ISRC != nil {
		updates["isrc"] = *item.Track.ISRC
	}
	if track.ReleaseDate == nil && item.Track.ReleaseDate != nil {
		updates["release_date"] = *item.Track.ReleaseDate
	}
	if track.DurationMS == nil && item.Track.DurationMS != nil {
		updates["duration_ms"] = *item.Track.DurationMS
	}
	if track.SpotifyAddedAt == nil && item.AddedAt != nil {
		updates["spotify_added_at"] = *item.AddedAt
	}
	if len(updates) == 0 {
		return false, nil
	}
	if err := i.db.UpdateTrackPartial(track.ID, updates); err != nil {
		return false, err
	}
	return true, nil
}
