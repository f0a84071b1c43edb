package store

import (
	"testing"

	"github.com/dperezm/tracknest/internal/domain"
)

func TestDB_ReplaceCandidatesAndOrder(t *testing.T) {
	db := setupTestDB(t)
	track := createTestTrack(t, db, "artist", "song")

	candidates := []domain.SearchCandidate{
		{Provider: domain.SearchProviderYouTube, ExternalID: "low", URL: "u1", Title: "song live", Score: 10},
		{Provider: domain.SearchProviderYouTube, ExternalID: "high", URL: "u2", Title: "song", Score: 150},
		{Provider: domain.SearchProviderYouTube, ExternalID: "mid", URL: "u3", Title: "song edit", Score: 90},
	}
	if err := db.ReplaceCandidates(track.ID, candidates); err != nil {
		t.Fatalf("ReplaceCandidates failed: %v", err)
	}

	got, err := db.ListCandidates(track.ID)
	if err != nil {
		t.Fatalf("ListCandidates failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 candidates, got %d", len(got))
	}
	if got[0].ExternalID != "high" || got[1].ExternalID != "mid" || got[2].ExternalID != "low" {
		t.Errorf("Candidates not ordered by score: %s %s %s", got[0].ExternalID, got[1].ExternalID, got[2].ExternalID)
	}

	// A fresh search replaces the whole set.
	if err := db.ReplaceCandidates(track.ID, candidates[:1]); err != nil {
		t.Fatalf("ReplaceCandidates failed: %v", err)
	}
	got, _ = db.ListCandidates(track.ID)
	if len(got) != 1 {
		t.Errorf("Expected candidate set replaced, got %d rows", len(got))
	}
}

func TestDB_ChooseCandidateIsExclusive(t *testing.T) {
	db := setupTestDB(t)
	track := createTestTrack(t, db, "artist", "song")

	candidates := []domain.SearchCandidate{
		{Provider: domain.SearchProviderYouTube, ExternalID: "a", URL: "u1", Title: "song", Score: 100},
		{Provider: domain.SearchProviderYouTube, ExternalID: "b", URL: "u2", Title: "song b", Score: 90},
	}
	if err := db.ReplaceCandidates(track.ID, candidates); err != nil {
		t.Fatalf("ReplaceCandidates failed: %v", err)
	}
	stored, _ := db.ListCandidates(track.ID)

	if err := db.ChooseCandidate(track.ID, stored[0].ID); err != nil {
		t.Fatalf("ChooseCandidate failed: %v", err)
	}
	if err := db.ChooseCandidate(track.ID, stored[1].ID); err != nil {
		t.Fatalf("ChooseCandidate failed: %v", err)
	}

	chosen, err := db.GetChosenCandidate(track.ID)
	if err != nil {
		t.Fatalf("GetChosenCandidate failed: %v", err)
	}
	if chosen.ID != stored[1].ID {
		t.Errorf("Expected latest choice %d, got %d", stored[1].ID, chosen.ID)
	}

	all, _ := db.ListCandidates(track.ID)
	chosenCount := 0
	for _, c := range all {
		if c.Chosen {
			chosenCount++
		}
	}
	if chosenCount != 1 {
		t.Errorf("Expected exactly one chosen candidate, got %d", chosenCount)
	}
}

func TestDB_ChooseCandidateWrongTrack(t *testing.T) {
	db := setupTestDB(t)
	trackA := createTestTrack(t, db, "artist", "song a")
	trackB := createTestTrack(t, db, "artist", "song b")

	if err := db.ReplaceCandidates(trackA.ID, []domain.SearchCandidate{
		{Provider: domain.SearchProviderYouTube, ExternalID: "a", URL: "u", Title: "song a"},
	}); err != nil {
		t.Fatalf("ReplaceCandidates failed: %v", err)
	}
	stored, _ := db.ListCandidates(trackA.ID)

	if err := db.ChooseCandidate(trackB.ID, stored[0].ID); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound for cross-track choose, got %v", err)
	}
}
