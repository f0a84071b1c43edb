package store

import (
	"fmt"
	"testing"

	"github.com/dperezm/tracknest/internal/domain"
)

func TestDB_CreateTrackGetsManualIdentity(t *testing.T) {
	db := setupTestDB(t)

	track := createTestTrack(t, db, "block & crown", "lonely heart")
	if track.ID == 0 {
		t.Fatal("Expected track id to be set")
	}

	identities, err := db.ListIdentities(track.ID)
	if err != nil {
		t.Fatalf("ListIdentities failed: %v", err)
	}
	if len(identities) != 1 {
		t.Fatalf("Expected 1 identity, got %d", len(identities))
	}
	if identities[0].Provider != domain.ProviderManual {
		t.Errorf("Expected manual provider, got %s", identities[0].Provider)
	}
	expected := fmt.Sprintf("manual:%d", track.ID)
	if identities[0].ProviderTrackID != expected {
		t.Errorf("Expected provider track id %s, got %s", expected, identities[0].ProviderTrackID)
	}
}

func TestDB_CreateTrackWithProvidedIdentity(t *testing.T) {
	db := setupTestDB(t)

	track := &domain.Track{
		Artists:           "Artist",
		Title:             "Song",
		NormalizedArtists: "artist",
		NormalizedTitle:   "song",
	}
	identity := &domain.TrackIdentity{
		Provider:        domain.ProviderSpotify,
		ProviderTrackID: "spotify123",
	}
	if err := db.CreateTrack(track, identity); err != nil {
		t.Fatalf("CreateTrack failed: %v", err)
	}

	fetched, err := db.GetTrackByProviderID(domain.ProviderSpotify, "spotify123")
	if err != nil {
		t.Fatalf("GetTrackByProviderID failed: %v", err)
	}
	if fetched.ID != track.ID {
		t.Errorf("Expected track %d, got %d", track.ID, fetched.ID)
	}
}

func TestDB_FindDuplicateTrack(t *testing.T) {
	db := setupTestDB(t)

	isrc := "USABC1234567"
	track := &domain.Track{
		Artists:           "Artist",
		Title:             "Song",
		NormalizedArtists: "artist",
		NormalizedTitle:   "song",
		ISRC:              &isrc,
	}
	identity := &domain.TrackIdentity{Provider: domain.ProviderSpotify, ProviderTrackID: "sp1"}
	if err := db.CreateTrack(track, identity); err != nil {
		t.Fatalf("CreateTrack failed: %v", err)
	}

	// By provider identity
	found, err := db.FindDuplicateTrack(domain.ProviderSpotify, "sp1", nil, "x", "y")
	if err != nil {
		t.Fatalf("FindDuplicateTrack by identity failed: %v", err)
	}
	if found.ID != track.ID {
		t.Errorf("Expected track %d, got %d", track.ID, found.ID)
	}

	// By ISRC
	found, err = db.FindDuplicateTrack(domain.ProviderSpotify, "other", &isrc, "x", "y")
	if err != nil {
		t.Fatalf("FindDuplicateTrack by isrc failed: %v", err)
	}
	if found.ID != track.ID {
		t.Errorf("Expected track %d, got %d", track.ID, found.ID)
	}

	// By normalized pair
	found, err = db.FindDuplicateTrack(domain.ProviderSpotify, "other", nil, "artist", "song")
	if err != nil {
		t.Fatalf("FindDuplicateTrack by normalized pair failed: %v", err)
	}
	if found.ID != track.ID {
		t.Errorf("Expected track %d, got %d", track.ID, found.ID)
	}

	// No match
	if _, err := db.FindDuplicateTrack(domain.ProviderSpotify, "none", nil, "a", "b"); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDB_UpdateTrackPartial(t *testing.T) {
	db := setupTestDB(t)
	track := createTestTrack(t, db, "artist", "song")

	err := db.UpdateTrackPartial(track.ID, map[string]interface{}{
		"genre": "house",
		"bpm":   126,
	})
	if err != nil {
		t.Fatalf("UpdateTrackPartial failed: %v", err)
	}

	fetched, _ := db.GetTrackByID(track.ID)
	if fetched.Genre == nil || *fetched.Genre != "house" {
		t.Errorf("Expected genre house, got %v", fetched.Genre)
	}
	if fetched.BPM == nil || *fetched.BPM != 126 {
		t.Errorf("Expected bpm 126, got %v", fetched.BPM)
	}

	if err := db.UpdateTrackPartial(track.ID, map[string]interface{}{"status": "x"}); err == nil {
		t.Error("Expected error for disallowed column")
	}
	if err := db.UpdateTrackPartial(9999, map[string]interface{}{"genre": "x"}); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound for missing track, got %v", err)
	}
}

func TestDB_DeleteTrackCascades(t *testing.T) {
	db := setupTestDB(t)
	track := createTestTrack(t, db, "artist", "song")

	err := db.ReplaceCandidates(track.ID, []domain.SearchCandidate{
		{Provider: domain.SearchProviderYouTube, ExternalID: "v1", URL: "https://youtu.be/v1", Title: "song"},
	})
	if err != nil {
		t.Fatalf("ReplaceCandidates failed: %v", err)
	}
	download := &domain.Download{TrackID: track.ID, Provider: "youtube"}
	if err := db.CreateDownload(download); err != nil {
		t.Fatalf("CreateDownload failed: %v", err)
	}

	if err := db.DeleteTrack(track.ID); err != nil {
		t.Fatalf("DeleteTrack failed: %v", err)
	}

	if _, err := db.GetTrackByID(track.ID); err != ErrNotFound {
		t.Errorf("Expected track gone, got %v", err)
	}
	candidates, _ := db.ListCandidates(track.ID)
	if len(candidates) != 0 {
		t.Errorf("Expected candidates cascaded, got %d", len(candidates))
	}
	if _, err := db.GetDownloadByID(download.ID); err != ErrNotFound {
		t.Errorf("Expected download cascaded, got %v", err)
	}
}

func TestDB_ListTracksFilters(t *testing.T) {
	db := setupTestDB(t)
	acquired := createTestTrack(t, db, "artist one", "have it")
	createTestTrack(t, db, "artist two", "want it")

	err := db.UpsertLibraryFile(&domain.LibraryFile{
		TrackID:   acquired.ID,
		Filepath:  "/library/artist one - have it.mp3",
		Container: "mp3",
	})
	if err != nil {
		t.Fatalf("UpsertLibraryFile failed: %v", err)
	}

	missing, err := db.ListTracks(TrackFilter{MissingOnly: true})
	if err != nil {
		t.Fatalf("ListTracks missing failed: %v", err)
	}
	if len(missing) != 1 || missing[0].Title != "want it" {
		t.Errorf("Expected only the missing track, got %+v", missing)
	}

	got, err := db.ListTracks(TrackFilter{AcquiredOnly: true})
	if err != nil {
		t.Fatalf("ListTracks acquired failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != acquired.ID {
		t.Errorf("Expected only the acquired track, got %+v", got)
	}

	byQuery, err := db.ListTracks(TrackFilter{Query: "want"})
	if err != nil {
		t.Fatalf("ListTracks query failed: %v", err)
	}
	if len(byQuery) != 1 || byQuery[0].Title != "want it" {
		t.Errorf("Expected query match, got %+v", byQuery)
	}
}
