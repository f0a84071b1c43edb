package store

import (
	"testing"

	"github.com/dperezm/tracknest/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestDB_UpsertPlaylistKeepsSelection(t *testing.T) {
	db := setupTestDB(t)

	playlist := &domain.Playlist{
		Provider:           domain.ProviderSpotify,
		ProviderPlaylistID: strPtr("pl1"),
		Name:               "House",
		Snapshot:           strPtr("snap1"),
	}
	if err := db.UpsertPlaylist(playlist); err != nil {
		t.Fatalf("UpsertPlaylist failed: %v", err)
	}
	if err := db.SetPlaylistSelected(playlist.ID, true); err != nil {
		t.Fatalf("SetPlaylistSelected failed: %v", err)
	}

	// A sync refresh updates metadata but never clears the selection.
	refreshed := &domain.Playlist{
		Provider:           domain.ProviderSpotify,
		ProviderPlaylistID: strPtr("pl1"),
		Name:               "House (renamed)",
		Snapshot:           strPtr("snap2"),
	}
	if err := db.UpsertPlaylist(refreshed); err != nil {
		t.Fatalf("UpsertPlaylist refresh failed: %v", err)
	}
	if refreshed.ID != playlist.ID {
		t.Errorf("Expected same playlist id, got %d and %d", playlist.ID, refreshed.ID)
	}
	if !refreshed.Selected {
		t.Error("Expected selection to survive refresh")
	}

	fetched, _ := db.GetPlaylistByID(playlist.ID)
	if fetched.Name != "House (renamed)" {
		t.Errorf("Expected renamed playlist, got %s", fetched.Name)
	}
	if fetched.Snapshot == nil || *fetched.Snapshot != "snap2" {
		t.Errorf("Expected snapshot snap2, got %v", fetched.Snapshot)
	}
}

func TestDB_ReplacePlaylistTracks(t *testing.T) {
	db := setupTestDB(t)

	playlist := &domain.Playlist{Provider: domain.ProviderManual, Name: "Mine"}
	if err := db.UpsertPlaylist(playlist); err != nil {
		t.Fatalf("UpsertPlaylist failed: %v", err)
	}
	trackA := createTestTrack(t, db, "artist", "a")
	trackB := createTestTrack(t, db, "artist", "b")

	pos0, pos1 := 0, 1
	links := []domain.PlaylistTrack{
		{TrackID: trackB.ID, Position: &pos0},
		{TrackID: trackA.ID, Position: &pos1},
	}
	if err := db.ReplacePlaylistTracks(playlist.ID, links); err != nil {
		t.Fatalf("ReplacePlaylistTracks failed: %v", err)
	}

	tracks, err := db.ListPlaylistTracks(playlist.ID)
	if err != nil {
		t.Fatalf("ListPlaylistTracks failed: %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("Expected 2 tracks, got %d", len(tracks))
	}
	if tracks[0].ID != trackB.ID {
		t.Errorf("Expected position order, got %d first", tracks[0].ID)
	}

	// Removing a link never deletes the track.
	if err := db.ReplacePlaylistTracks(playlist.ID, links[:1]); err != nil {
		t.Fatalf("ReplacePlaylistTracks failed: %v", err)
	}
	if _, err := db.GetTrackByID(trackA.ID); err != nil {
		t.Errorf("Expected unlinked track to survive, got %v", err)
	}
}

func TestDB_ListPlaylistsSelectedOnly(t *testing.T) {
	db := setupTestDB(t)

	a := &domain.Playlist{Provider: domain.ProviderSpotify, ProviderPlaylistID: strPtr("a"), Name: "A"}
	b := &domain.Playlist{Provider: domain.ProviderSpotify, ProviderPlaylistID: strPtr("b"), Name: "B"}
	if err := db.UpsertPlaylist(a); err != nil {
		t.Fatalf("UpsertPlaylist failed: %v", err)
	}
	if err := db.UpsertPlaylist(b); err != nil {
		t.Fatalf("UpsertPlaylist failed: %v", err)
	}
	if err := db.SetPlaylistSelected(b.ID, true); err != nil {
		t.Fatalf("SetPlaylistSelected failed: %v", err)
	}

	selected, err := db.ListPlaylists(true)
	if err != nil {
		t.Fatalf("ListPlaylists failed: %v", err)
	}
	if len(selected) != 1 || selected[0].ID != b.ID {
		t.Errorf("Expected only playlist B, got %+v", selected)
	}
	all, _ := db.ListPlaylists(false)
	if len(all) != 2 {
		t.Errorf("Expected 2 playlists, got %d", len(all))
	}
}
