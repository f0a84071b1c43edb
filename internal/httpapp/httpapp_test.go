package httpapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dperezm/tracknest/internal/crypto"
	"github.com/dperezm/tracknest/internal/domain"
	"github.com/dperezm/tracknest/internal/extractor"
	"github.com/dperezm/tracknest/internal/ingest"
	"github.com/dperezm/tracknest/internal/logbuf"
	"github.com/dperezm/tracknest/internal/logger"
	"github.com/dperezm/tracknest/internal/metrics"
	"github.com/dperezm/tracknest/internal/ranking"
	"github.com/dperezm/tracknest/internal/scheduler"
	"github.com/dperezm/tracknest/internal/spotify"
	"github.com/dperezm/tracknest/internal/store"
	"github.com/dperezm/tracknest/internal/tagging"
)

type testApp struct {
	db     *store.DB
	sched  *scheduler.Scheduler
	srv    *httptest.Server
	libDir string
}

type noSpotify struct{}

func (noSpotify) CurrentUserPlaylists(context.Context, string) ([]spotify.Playlist, error) {
	return nil, nil
}
func (noSpotify) PlaylistSnapshot(context.Context, string, string) (string, error) { return "", nil }
func (noSpotify) PlaylistTracks(context.Context, string, string) ([]spotify.PlaylistTrack, error) {
	return nil, nil
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	dir := t.TempDir()
	db, err := store.NewSQLiteDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close() //nolint:errcheck // test cleanup
	})

	log := logger.Default()
	m := metrics.New()
	libDir := filepath.Join(dir, "library")
	sched := scheduler.New(db, extractor.NewFake(), ranking.New(ranking.DefaultConfig()),
		tagging.New(""), log, logbuf.New(100), m, scheduler.Config{
			LibraryDir:         libDir,
			Concurrency:        1,
			MinAutochooseScore: 20,
		})
	if err := sched.Start(); err != nil {
		t.Fatalf("Failed to start scheduler: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sched.Shutdown(ctx) //nolint:errcheck // test cleanup
	})

	box := crypto.New("test-secret")
	auth := spotify.NewAuthenticator(db, box, "client-id", "client-secret", "http://localhost/cb")
	ing := ingest.New(db, noSpotify{}, auth, log, m)

	h := NewHandler(db, sched, ing, auth, m, log, Config{
		AppName:    "tracknest",
		Version:    "test",
		LibraryDir: libDir,
	})
	r := chi.NewRouter()
	r.Route("/api/v1", h.RegisterRoutes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testApp{db: db, sched: sched, srv: srv, libDir: libDir}
}

func (a *testApp) request(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, a.srv.URL+"/api/v1"+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request %s %s failed: %v", method, path, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close() //nolint:errcheck // test cleanup
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return out
}

func createTrack(t *testing.T, a *testApp, artists, title string) domain.Track {
	t.Helper()
	resp := a.request(t, http.MethodPost, "/tracks", map[string]any{
		"artists": artists, "title": title, "duration_ms": 180000,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}
	return decode[domain.Track](t, resp)
}

func TestHealthAndInfo(t *testing.T) {
	a := newTestApp(t)

	resp := a.request(t, http.MethodGet, "/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close() //nolint:errcheck // test cleanup

	info := decode[map[string]string](t, a.request(t, http.MethodGet, "/info", nil))
	if info["name"] != "tracknest" || info["version"] != "test" {
		t.Errorf("Unexpected info: %v", info)
	}
}

func TestTrackCRUD(t *testing.T) {
	a := newTestApp(t)

	track := createTrack(t, a, "AUSMAX", "Love (feat. Nobody)")
	if track.Artists != "AUSMAX & Nobody" {
		t.Errorf("Expected featured artist attributed, got %q", track.Artists)
	}
	if track.NormalizedTitle != "love" {
		t.Errorf("Expected normalized title, got %q", track.NormalizedTitle)
	}

	got := decode[domain.Track](t, a.request(t, http.MethodGet, fmt.Sprintf("/tracks/%d", track.ID), nil))
	if got.ID != track.ID {
		t.Errorf("Expected track %d, got %d", track.ID, got.ID)
	}

	updated := decode[domain.Track](t, a.request(t, http.MethodPut, fmt.Sprintf("/tracks/%d", track.ID),
		map[string]any{"title": "Love Again"}))
	if updated.Title != "Love Again" || updated.NormalizedTitle != "love again" {
		t.Errorf("Expected title updated with normalization, got %q / %q", updated.Title, updated.NormalizedTitle)
	}

	list := decode[[]domain.Track](t, a.request(t, http.MethodGet, "/tracks?q=Again", nil))
	if len(list) != 1 {
		t.Errorf("Expected 1 search hit, got %d", len(list))
	}

	resp := a.request(t, http.MethodDelete, fmt.Sprintf("/tracks/%d", track.ID), nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close() //nolint:errcheck // test cleanup

	resp = a.request(t, http.MethodGet, fmt.Sprintf("/tracks/%d", track.ID), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", resp.StatusCode)
	}
	resp.Body.Close() //nolint:errcheck // test cleanup
}

func TestNormalizePreview(t *testing.T) {
	a := newTestApp(t)

	resp := a.request(t, http.MethodGet, "/tracks/normalize/preview?artists=Block+%26+Crown&title=Lonely+Heart+(Extended+Mix)", nil)
	preview := decode[map[string]any](t, resp)
	if preview["clean_title"] != "Lonely Heart" {
		t.Errorf("Expected bracketed clause stripped, got %v", preview["clean_title"])
	}
}

func TestSearchPersistAndChoose(t *testing.T) {
	a := newTestApp(t)
	track := createTrack(t, a, "AUSMAX", "Love")

	resp := decode[searchResponse](t, a.request(t, http.MethodGet,
		fmt.Sprintf("/tracks/%d/youtube/search?persist=true", track.ID), nil))
	if len(resp.Results) == 0 || len(resp.Candidates) == 0 {
		t.Fatalf("Expected results and persisted candidates, got %d/%d", len(resp.Results), len(resp.Candidates))
	}
	if resp.Results[0].Score < resp.Results[len(resp.Results)-1].Score {
		t.Error("Expected results best first")
	}

	chosen := decode[domain.SearchCandidate](t, a.request(t, http.MethodPost,
		fmt.Sprintf("/candidates/%d/choose", resp.Candidates[0].ID), nil))
	if !chosen.Chosen {
		t.Error("Expected candidate marked chosen")
	}

	enriched := decode[[]store.CandidateWithTrack](t, a.request(t, http.MethodGet,
		fmt.Sprintf("/candidates/enriched?track_id=%d", track.ID), nil))
	if len(enriched) == 0 || enriched[0].TrackArtists != "AUSMAX" {
		t.Errorf("Expected enriched candidates with track info, got %+v", enriched)
	}
}

func TestEnqueueFlow(t *testing.T) {
	a := newTestApp(t)
	track := createTrack(t, a, "AUSMAX", "Love")

	// no chosen candidate yet
	resp := a.request(t, http.MethodPost, fmt.Sprintf("/downloads/enqueue?track_id=%d", track.ID), nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 without candidate, got %d", resp.StatusCode)
	}
	resp.Body.Close() //nolint:errcheck // test cleanup

	search := decode[searchResponse](t, a.request(t, http.MethodGet,
		fmt.Sprintf("/tracks/%d/youtube/search?persist=true", track.ID), nil))
	a.request(t, http.MethodPost, fmt.Sprintf("/candidates/%d/choose", search.Candidates[0].ID), nil).
		Body.Close() //nolint:errcheck // test cleanup

	resp = a.request(t, http.MethodPost, fmt.Sprintf("/downloads/enqueue?track_id=%d", track.ID), nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", resp.StatusCode)
	}
	download := decode[domain.Download](t, resp)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		d, err := a.db.GetDownloadByID(download.ID)
		if err != nil {
			t.Fatal(err)
		}
		if d.Status.Terminal() {
			if d.Status != domain.DownloadStatusDone {
				t.Fatalf("Expected done, got %s (%v)", d.Status, d.ErrorMessage)
			}
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	// second enqueue records an 'already' row
	second := decode[domain.Download](t, a.request(t, http.MethodPost,
		fmt.Sprintf("/downloads/enqueue?track_id=%d", track.ID), nil))
	if second.Status != domain.DownloadStatusAlready {
		t.Errorf("Expected already, got %s", second.Status)
	}

	status := decode[scheduler.Status](t, a.request(t, http.MethodGet, "/downloads/status", nil))
	if !status.WorkerRunning {
		t.Error("Expected worker running")
	}

	withTracks := decode[[]store.DownloadWithTrack](t, a.request(t, http.MethodGet, "/downloads/with_tracks", nil))
	if len(withTracks) < 2 || withTracks[0].TrackTitle == "" {
		t.Errorf("Expected enriched downloads, got %+v", withTracks)
	}
}

func TestLibraryStreamRanges(t *testing.T) {
	a := newTestApp(t)
	track := createTrack(t, a, "AUSMAX", "Love")

	body := bytes.Repeat([]byte("x"), 10000)
	path := filepath.Join(t.TempDir(), "AUSMAX - Love.mp3")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}
	file := &domain.LibraryFile{TrackID: track.ID, Filepath: path, Container: "mp3"}
	if err := a.db.UpsertLibraryFile(file); err != nil {
		t.Fatal(err)
	}

	full := a.request(t, http.MethodGet, fmt.Sprintf("/library/files/%d/stream", file.ID), nil)
	if full.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", full.StatusCode)
	}
	if full.Header.Get("Accept-Ranges") != "bytes" || full.Header.Get("ETag") == "" {
		t.Error("Expected Accept-Ranges and ETag headers")
	}
	fullBody := new(bytes.Buffer)
	fullBody.ReadFrom(full.Body) //nolint:errcheck // test read
	full.Body.Close()            //nolint:errcheck // test cleanup
	if fullBody.Len() != 10000 {
		t.Fatalf("Expected 10000 bytes, got %d", fullBody.Len())
	}

	// two adjoining ranges concatenate back to the full body
	var ranged bytes.Buffer
	for _, r := range []string{"bytes=0-4999", "bytes=5000-9999"} {
		req, _ := http.NewRequest(http.MethodGet, a.srv.URL+fmt.Sprintf("/api/v1/library/files/%d/stream", file.ID), nil)
		req.Header.Set("Range", r)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusPartialContent {
			t.Fatalf("Expected 206 for %s, got %d", r, resp.StatusCode)
		}
		if cr := resp.Header.Get("Content-Range"); cr == "" {
			t.Errorf("Expected Content-Range for %s", r)
		}
		ranged.ReadFrom(resp.Body) //nolint:errcheck // test read
		resp.Body.Close()          //nolint:errcheck // test cleanup
	}
	if !bytes.Equal(ranged.Bytes(), fullBody.Bytes()) {
		t.Error("Expected ranged responses to concatenate to full body")
	}
}

func TestLibraryResyncDropsMissing(t *testing.T) {
	a := newTestApp(t)
	track := createTrack(t, a, "AUSMAX", "Love")

	gone := &domain.LibraryFile{TrackID: track.ID, Filepath: filepath.Join(a.libDir, "gone.mp3"), Container: "mp3"}
	if err := a.db.UpsertLibraryFile(gone); err != nil {
		t.Fatal(err)
	}

	summary := decode[resyncSummary](t, a.request(t, http.MethodPost, "/library/files/resync", nil))
	if summary.Removed != 1 {
		t.Errorf("Expected 1 removed, got %d", summary.Removed)
	}
	if _, err := a.db.GetLibraryFileByID(gone.ID); err != store.ErrNotFound {
		t.Errorf("Expected row dropped, got %v", err)
	}
}

func TestImportExportRoundTrip(t *testing.T) {
	a := newTestApp(t)

	payload := []map[string]any{
		{"artists": "Block & Crown", "title": "Lonely Heart", "duration_ms": 240000},
		{"artists": "AUSMAX", "title": "Love"},
		{"artists": "", "title": "broken"},
	}
	summary := decode[importSummary](t, a.request(t, http.MethodPost, "/tracks/import", payload))
	if summary.Imported != 2 || summary.Skipped != 1 {
		t.Errorf("Expected 2 imported 1 skipped, got %+v", summary)
	}

	// importing the same list again is a no-op
	summary = decode[importSummary](t, a.request(t, http.MethodPost, "/tracks/import", payload))
	if summary.Imported != 0 || summary.Skipped != 3 {
		t.Errorf("Expected all skipped on re-import, got %+v", summary)
	}

	exported := decode[[]domain.Track](t, a.request(t, http.MethodGet, "/tracks/export", nil))
	if len(exported) != 2 {
		t.Errorf("Expected 2 exported tracks, got %d", len(exported))
	}
}

func TestPlaylistStatsAndMemberships(t *testing.T) {
	a := newTestApp(t)
	track := createTrack(t, a, "AUSMAX", "Love")

	playlist := &domain.Playlist{Provider: domain.ProviderManual, Name: "Mix"}
	if err := a.db.UpsertPlaylist(playlist); err != nil {
		t.Fatal(err)
	}
	if err := a.db.ReplacePlaylistTracks(playlist.ID, []domain.PlaylistTrack{{TrackID: track.ID}}); err != nil {
		t.Fatal(err)
	}

	stats := decode[[]store.PlaylistStats](t, a.request(t, http.MethodGet, "/playlists/stats", nil))
	if len(stats) != 1 || stats[0].TotalTracks != 1 || stats[0].AcquiredTracks != 0 {
		t.Errorf("Unexpected stats: %+v", stats)
	}

	memberships := decode[map[int64][]store.PlaylistRef](t, a.request(t, http.MethodPost,
		"/playlists/memberships", map[string]any{"track_ids": []int64{track.ID}}))
	if refs := memberships[track.ID]; len(refs) != 1 || refs[0].Name != "Mix" {
		t.Errorf("Unexpected memberships: %+v", memberships)
	}
}

func TestCoverRefreshFromCandidate(t *testing.T) {
	a := newTestApp(t)
	track := createTrack(t, a, "AUSMAX", "Love")

	search := decode[searchResponse](t, a.request(t, http.MethodGet,
		fmt.Sprintf("/tracks/%d/youtube/search?persist=true", track.ID), nil))
	a.request(t, http.MethodPost, fmt.Sprintf("/candidates/%d/choose", search.Candidates[0].ID), nil).
		Body.Close() //nolint:errcheck // test cleanup

	resp := decode[map[string]json.RawMessage](t, a.request(t, http.MethodPost,
		fmt.Sprintf("/tracks/%d/cover/refresh", track.ID), nil))
	var source string
	json.Unmarshal(resp["source"], &source) //nolint:errcheck // test decode
	if source != "candidate" {
		t.Errorf("Expected candidate source, got %s", source)
	}
	var updated domain.Track
	if err := json.Unmarshal(resp["track"], &updated); err != nil {
		t.Fatal(err)
	}
	if updated.CoverURL == nil || *updated.CoverURL == "" {
		t.Error("Expected derived cover url")
	}
}

func TestSearchPersistBackfillsCover(t *testing.T) {
	a := newTestApp(t)
	track := createTrack(t, a, "AUSMAX", "Love")
	if track.CoverURL != nil {
		t.Fatalf("Expected no cover on a fresh track, got %v", *track.CoverURL)
	}

	resp := a.request(t, http.MethodGet,
		fmt.Sprintf("/tracks/%d/youtube/search?persist=false", track.ID), nil)
	resp.Body.Close() //nolint:errcheck // test cleanup
	got := decode[domain.Track](t, a.request(t, http.MethodGet, fmt.Sprintf("/tracks/%d", track.ID), nil))
	if got.CoverURL != nil {
		t.Errorf("Expected no cover without persist, got %v", *got.CoverURL)
	}

	resp = a.request(t, http.MethodGet,
		fmt.Sprintf("/tracks/%d/youtube/search?persist=true&prefer_extended=true", track.ID), nil)
	resp.Body.Close() //nolint:errcheck // test cleanup
	got = decode[domain.Track](t, a.request(t, http.MethodGet, fmt.Sprintf("/tracks/%d", track.ID), nil))
	if got.CoverURL == nil || !strings.HasPrefix(*got.CoverURL, "https://i.ytimg.com/vi/") {
		t.Errorf("Expected thumbnail cover after persisted search, got %v", got.CoverURL)
	}
}

func TestChooseBackfillsCover(t *testing.T) {
	a := newTestApp(t)
	track := createTrack(t, a, "AUSMAX", "Love")

	candidates := []domain.SearchCandidate{{
		Provider:   domain.SearchProviderYouTube,
		ExternalID: "fake2",
		URL:        "https://youtu.be/fake2",
		Title:      "AUSMAX - Love (Extended Mix)",
		Score:      90,
	}}
	if err := a.db.ReplaceCandidates(track.ID, candidates); err != nil {
		t.Fatal(err)
	}

	a.request(t, http.MethodPost, fmt.Sprintf("/candidates/%d/choose", candidates[0].ID), nil).
		Body.Close() //nolint:errcheck // test cleanup

	got := decode[domain.Track](t, a.request(t, http.MethodGet, fmt.Sprintf("/tracks/%d", track.ID), nil))
	if got.CoverURL == nil || *got.CoverURL != "https://i.ytimg.com/vi/fake2/hqdefault.jpg" {
		t.Errorf("Expected cover from chosen candidate, got %v", got.CoverURL)
	}
}

func TestCookiesValidate(t *testing.T) {
	a := newTestApp(t)

	report := decode[cookiesReport](t, a.request(t, http.MethodGet, "/cookies/validate", nil))
	if report.Configured || len(report.Missing) == 0 {
		t.Errorf("Expected unconfigured report, got %+v", report)
	}
}
