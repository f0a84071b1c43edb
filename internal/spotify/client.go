// Package spotify talks to the Spotify Web API and runs the PKCE OAuth
// flow for connected accounts.
package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dperezm/tracknest/internal/httpclient"
	"github.com/dperezm/tracknest/internal/logger"
)

const (
	apiBase    = "https://api.spotify.com/v1"
	apiTimeout = 20 * time.Second
)

// Playlist is a playlist as the provider reports it.
type Playlist struct {
	ID         string
	Name       string
	Owner      *string
	SnapshotID string
}

// Track carries the catalog fields the ingestor maps onto a track row.
type Track struct {
	ID          string
	Name        string
	Artists     []string
	Album       *string
	CoverURL    *string
	DurationMS  *int
	ISRC        *string
	ReleaseDate *string
	Explicit    bool
}

// PlaylistTrack pairs a track with the moment it entered the playlist.
type PlaylistTrack struct {
	AddedAt *time.Time
	Track   Track
}

// Client is a rate-limited Spotify Web API reader. Tokens are supplied
// per call; the client holds no account state.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
	base    string
}

func NewClient(log *logger.Logger) *Client {
	return &Client{
		base: apiBase,
		http: httpclient.New(apiTimeout),
		// Spotify allows bursts but sustained hammering earns 429s.
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		log:     log.WithComponent("spotify"),
	}
}

// CurrentUserPlaylists pages through every playlist of the token's user.
func (c *Client) CurrentUserPlaylists(ctx context.Context, accessToken string) ([]Playlist, error) {
	var out []Playlist
	next := c.base + "/me/playlists?limit=50"
	for next != "" {
		var page struct {
			Items []struct {
				ID         string `json:"id"`
				Name       string `json:"name"`
				SnapshotID string `json:"snapshot_id"`
				Owner      struct {
					DisplayName *string `json:"display_name"`
					ID          string  `json:"id"`
				} `json:"owner"`
			} `json:"items"`
			Next *string `json:"next"`
		}
		if err := c.getJSON(ctx, accessToken, next, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			owner := item.Owner.DisplayName
			if owner == nil && item.Owner.ID != "" {
				id := item.Owner.ID
				owner = &id
			}
			out = append(out, Playlist{
				ID:         item.ID,
				Name:       item.Name,
				Owner:      owner,
				SnapshotID: item.SnapshotID,
			})
		}
		if page.Next == nil {
			break
		}
		next = *page.Next
	}
	return out, nil
}

// PlaylistSnapshot fetches only the snapshot marker, the cheap probe the
// incremental sync uses to skip unchanged playlists.
func (c *Client) PlaylistSnapshot(ctx context.Context, accessToken, playlistID string) (string, error) {
	var resp struct {
		SnapshotID string `json:"snapshot_id"`
	}
	u := fmt.Sprintf("%s/playlists/%s?fields=snapshot_id", c.base, url.PathEscape(playlistID))
	if err := c.getJSON(ctx, accessToken, u, &resp); err != nil {
		return "", err
	}
	return resp.SnapshotID, nil
}

// PlaylistTracks pages through a playlist's items. Items without a track
// id (local files, removed content) are dropped.
func (c *Client) PlaylistTracks(ctx context.Context, accessToken, playlistID string) ([]PlaylistTrack, error) {
	var out []PlaylistTrack
	next := fmt.Sprintf("%s/playlists/%s/tracks?limit=100", c.base, url.PathEscape(playlistID))
	for next != "" {
		var page struct {
			Items []struct {
				AddedAt *string `json:"added_at"`
				Track   *struct {
					ID      string `json:"id"`
					Name    string `json:"name"`
					Artists []struct {
						Name string `json:"name"`
					} `json:"artists"`
					Album struct {
						Name   string `json:"name"`
						Images []struct {
							URL string `json:"url"`
						} `json:"images"`
						ReleaseDate *string `json:"release_date"`
					} `json:"album"`
					DurationMS  *int `json:"duration_ms"`
					ExternalIDs struct {
						ISRC *string `json:"isrc"`
					} `json:"external_ids"`
					Explicit bool `json:"explicit"`
				} `json:"track"`
			} `json:"items"`
			Next *string `json:"next"`
		}
		if err := c.getJSON(ctx, accessToken, next, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			if item.Track == nil || item.Track.ID == "" {
				continue
			}
			t := Track{
				ID:          item.Track.ID,
				Name:        item.Track.Name,
				DurationMS:  item.Track.DurationMS,
				ISRC:        item.Track.ExternalIDs.ISRC,
				ReleaseDate: item.Track.Album.ReleaseDate,
				Explicit:    item.Track.Explicit,
			}
			for _, a := range item.Track.Artists {
				t.Artists = append(t.Artists, a.Name)
			}
			if item.Track.Album.Name != "" {
				album := item.Track.Album.Name
				t.Album = &album
			}
			if len(item.Track.Album.Images) > 0 {
				cover := item.Track.Album.Images[0].URL
				t.CoverURL = &cover
			}
			var addedAt *time.Time
			if item.AddedAt != nil && *item.AddedAt != "" {
				if ts, err := time.Parse(time.RFC3339, *item.AddedAt); err == nil {
					utc := ts.UTC()
					addedAt = &utc
				}
			}
			out = append(out, PlaylistTrack{AddedAt: addedAt, Track: t})
		}
		if page.Next == nil {
			break
		}
		next = *page.Next
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, accessToken, rawURL string, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("spotify request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // deferred cleanup

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512)) //nolint:errcheck // best effort for the error message
		return fmt.Errorf("spotify responded %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode spotify response: %w", err)
	}
	return nil
}
