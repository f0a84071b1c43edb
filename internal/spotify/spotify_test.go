package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dperezm/tracknest/internal/crypto"
	"github.com/dperezm/tracknest/internal/domain"
	"github.com/dperezm/tracknest/internal/logger"
	"github.com/dperezm/tracknest/internal/store"
)

func setupTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close() //nolint:errcheck // test cleanup
	})
	return db
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(logger.Default())
	c.base = srv.URL
	return c
}

func TestClient_CurrentUserPlaylistsPaging(t *testing.T) {
	var baseURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/me/playlists", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer AT" {
			t.Errorf("Expected bearer token, got %q", got)
		}
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `{"items":[{"id":"pl2","name":"Club Bangers","snapshot_id":"snap2","owner":{"id":"tester"}}],"next":null}`)
			return
		}
		fmt.Fprintf(w, `{"items":[{"id":"pl1","name":"Morning","snapshot_id":"snap1","owner":{"display_name":"Tester","id":"tester"}}],"next":"%s/me/playlists?page=2"}`, baseURL)
	})
	c := newTestClient(t, mux)
	baseURL = c.base

	playlists, err := c.CurrentUserPlaylists(context.Background(), "AT")
	if err != nil {
		t.Fatalf("CurrentUserPlaylists failed: %v", err)
	}
	if len(playlists) != 2 {
		t.Fatalf("Expected 2 playlists across pages, got %d", len(playlists))
	}
	if playlists[0].ID != "pl1" || playlists[0].SnapshotID != "snap1" {
		t.Errorf("Unexpected first playlist: %+v", playlists[0])
	}
	if playlists[0].Owner == nil || *playlists[0].Owner != "Tester" {
		t.Errorf("Expected display name owner, got %v", playlists[0].Owner)
	}
	if playlists[1].Owner == nil || *playlists[1].Owner != "tester" {
		t.Errorf("Expected owner id fallback, got %v", playlists[1].Owner)
	}
}

func TestClient_PlaylistSnapshot(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/playlists/plIncr", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fields") != "snapshot_id" {
			t.Errorf("Expected fields=snapshot_id, got %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"snapshot_id":"snap_initial"}`)
	})
	c := newTestClient(t, mux)

	snap, err := c.PlaylistSnapshot(context.Background(), "AT", "plIncr")
	if err != nil {
		t.Fatalf("PlaylistSnapshot failed: %v", err)
	}
	if snap != "snap_initial" {
		t.Errorf("Expected snap_initial, got %s", snap)
	}
}

func TestClient_PlaylistTracks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/playlists/plIncr/tracks", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[
			{"added_at":"2024-01-02T03:04:05Z","track":{"id":"trkA","name":"Song Alpha","artists":[{"name":"Artist One"},{"name":"Artist Two"}],"album":{"name":"Album One","images":[{"url":"https://i.scdn.co/image/abc"}],"release_date":"2023-06-15"},"duration_ms":111000,"external_ids":{"isrc":"ISO1"},"explicit":false}},
			{"added_at":null,"track":{"id":"trkB","name":"Song Beta","artists":[{"name":"Artist Two"}],"album":{"name":"Album Two","images":[]},"duration_ms":222000,"external_ids":{},"explicit":true}},
			{"added_at":null,"track":null}
		],"next":null}`)
	})
	c := newTestClient(t, mux)

	items, err := c.PlaylistTracks(context.Background(), "AT", "plIncr")
	if err != nil {
		t.Fatalf("PlaylistTracks failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 items (null track dropped), got %d", len(items))
	}

	first := items[0]
	if first.Track.ID != "trkA" || first.Track.Name != "Song Alpha" {
		t.Errorf("Unexpected track: %+v", first.Track)
	}
	if len(first.Track.Artists) != 2 || first.Track.Artists[0] != "Artist One" {
		t.Errorf("Unexpected artists: %v", first.Track.Artists)
	}
	if first.Track.ISRC == nil || *first.Track.ISRC != "ISO1" {
		t.Errorf("Expected ISRC, got %v", first.Track.ISRC)
	}
	if first.Track.CoverURL == nil || !strings.Contains(*first.Track.CoverURL, "i.scdn.co") {
		t.Errorf("Expected cover url, got %v", first.Track.CoverURL)
	}
	if first.Track.ReleaseDate == nil || *first.Track.ReleaseDate != "2023-06-15" {
		t.Errorf("Expected release date, got %v", first.Track.ReleaseDate)
	}
	if first.AddedAt == nil || !first.AddedAt.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("Unexpected added_at: %v", first.AddedAt)
	}

	second := items[1]
	if second.AddedAt != nil || second.Track.ISRC != nil || second.Track.CoverURL != nil {
		t.Errorf("Expected empty optionals, got %+v", second)
	}
	if !second.Track.Explicit {
		t.Error("Expected explicit flag carried over")
	}
}

func TestClient_ErrorStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"expired"}`, http.StatusUnauthorized)
	}))
	if _, err := c.CurrentUserPlaylists(context.Background(), "AT"); err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("Expected 401 error, got %v", err)
	}
}

func newTestAuthenticator(t *testing.T, db *store.DB) *Authenticator {
	t.Helper()
	return NewAuthenticator(db, crypto.New("test-secret"), "client-id", "client-secret", "http://localhost:8080/api/v1/oauth/spotify/callback")
}

func TestAuthenticator_AuthorizeURL(t *testing.T) {
	db := setupTestDB(t)
	a := newTestAuthenticator(t, db)

	account, err := a.EnsureAccount("default")
	if err != nil {
		t.Fatalf("EnsureAccount failed: %v", err)
	}

	redirect := "http://front/settings"
	rawURL, err := a.AuthorizeURL(account.ID, &redirect)
	if err != nil {
		t.Fatalf("AuthorizeURL failed: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	if q.Get("client_id") != "client-id" {
		t.Errorf("Expected client_id, got %s", q.Get("client_id"))
	}
	if q.Get("code_challenge_method") != "S256" {
		t.Errorf("Expected S256 challenge, got %s", q.Get("code_challenge_method"))
	}
	if q.Get("code_challenge") == "" || q.Get("state") == "" {
		t.Error("Expected code_challenge and state params")
	}
	if !strings.Contains(q.Get("scope"), "playlist-read-private") {
		t.Errorf("Expected playlist scope, got %s", q.Get("scope"))
	}

	// the state row is one-shot and holds the verifier
	st, err := db.ConsumeOAuthState(q.Get("state"))
	if err != nil {
		t.Fatalf("Expected persisted state: %v", err)
	}
	if st.CodeVerifier == "" || st.SourceAccountID != account.ID {
		t.Errorf("Incomplete state row: %+v", st)
	}
	if st.RedirectTo == nil || *st.RedirectTo != redirect {
		t.Errorf("Expected redirect_to captured, got %v", st.RedirectTo)
	}
}

func TestAuthenticator_CallbackRejectsUnknownState(t *testing.T) {
	db := setupTestDB(t)
	a := newTestAuthenticator(t, db)

	if _, err := a.HandleCallback(context.Background(), "code", "bogus-state"); err == nil {
		t.Error("Expected error for unknown state")
	}
}

func TestAuthenticator_EnsureAccountIdempotent(t *testing.T) {
	db := setupTestDB(t)
	a := newTestAuthenticator(t, db)

	first, err := a.EnsureAccount("default")
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.EnsureAccount("default")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Errorf("Expected same account, got %d and %d", first.ID, second.ID)
	}
}

func TestAuthenticator_AccessToken(t *testing.T) {
	db := setupTestDB(t)
	a := newTestAuthenticator(t, db)

	account, err := a.EnsureAccount("default")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := a.AccessToken(context.Background(), account.ID); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}

	future := time.Now().UTC().Add(time.Hour)
	if err := db.SaveOAuthToken(&domain.OAuthToken{
		SourceAccountID: account.ID,
		Provider:        domain.ProviderSpotify,
		AccessToken:     "AT",
		ExpiresAt:       &future,
	}); err != nil {
		t.Fatal(err)
	}

	token, err := a.AccessToken(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("AccessToken failed: %v", err)
	}
	if token != "AT" {
		t.Errorf("Expected stored token, got %s", token)
	}
}
