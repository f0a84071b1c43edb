package ranking

import (
	"reflect"
	"testing"
)

func intPtr(v int) *int       { return &v }
func strPtr(s string) *string { return &s }

func defaultEngine() *Engine {
	return New(DefaultConfig())
}

func detailValue(s Scored, key string) (float64, bool) {
	for _, d := range s.Details {
		if d.Key == key {
			return d.Value, true
		}
	}
	return 0, false
}

func TestScore_PerfectMatch(t *testing.T) {
	e := defaultEngine()
	query := Query{Artists: "Block & Crown", Title: "Lonely Heart", DurationMS: intPtr(240000)}
	candidate := Candidate{
		ExternalID:  "perfect",
		Title:       "Block & Crown - Lonely Heart",
		Channel:     strPtr("Block & Crown - Topic"),
		DurationSec: intPtr(240),
	}

	scored := e.Score(query, candidate)

	if scored.Components.Artist != 50 {
		t.Errorf("Expected artist 50, got %g", scored.Components.Artist)
	}
	if scored.Components.Title != 100 {
		t.Errorf("Expected title 100 (exact), got %g", scored.Components.Title)
	}
	if scored.Components.Extended != 0 {
		t.Errorf("Expected extended 0, got %g", scored.Components.Extended)
	}
	if scored.Components.Duration != 0 {
		t.Errorf("Expected duration 0, got %g", scored.Components.Duration)
	}
	if scored.Score != 150 {
		t.Errorf("Expected total 150, got %g", scored.Score)
	}
	if _, ok := detailValue(scored, "title.exact:lonely heart"); !ok {
		t.Errorf("Expected exact-title detail, got %+v", scored.Details)
	}
}

func TestScore_ExtendedBonus(t *testing.T) {
	e := defaultEngine()
	query := Query{Artists: "AUSMAX", Title: "Love", DurationMS: intPtr(159000)}
	candidate := Candidate{
		ExternalID:  "extended",
		Title:       "AUSMAX - Love (Extended Mix)",
		Channel:     strPtr("FOXsound Official"),
		DurationSec: intPtr(324),
	}

	scored := e.Score(query, candidate)

	if scored.Components.Artist != 50 {
		t.Errorf("Expected artist 50, got %g", scored.Components.Artist)
	}
	// One matched token (+15) and the surviving "mix" token (-10).
	if scored.Components.Title != 5 {
		t.Errorf("Expected title 5, got %g", scored.Components.Title)
	}
	if scored.Components.Extended != 40 {
		t.Errorf("Expected extended 40, got %g", scored.Components.Extended)
	}
	// 324s over a 159s reference passes the max ratio, so the bonus caps.
	if scored.Components.Duration != 30 {
		t.Errorf("Expected duration 30, got %g", scored.Components.Duration)
	}
	if scored.Score != 125 {
		t.Errorf("Expected total 125, got %g", scored.Score)
	}
	if v, ok := detailValue(scored, "title.remaining:mix"); !ok || v != -10 {
		t.Errorf("Expected remaining penalty for mix, got %+v", scored.Details)
	}
}

func TestScore_WrongArtistDemoted(t *testing.T) {
	e := defaultEngine()
	query := Query{Artists: "Block & Crown", Title: "Lonely Heart", DurationMS: intPtr(240000)}

	perfect := Candidate{
		ExternalID:  "perfect",
		Title:       "Block & Crown - Lonely Heart",
		Channel:     strPtr("Block & Crown - Topic"),
		DurationSec: intPtr(240),
	}
	wrong := Candidate{
		ExternalID:  "wrong",
		Title:       "Other Artist - Lonely Heart",
		Channel:     strPtr("Other Artist"),
		DurationSec: intPtr(240),
	}

	scoredWrong := e.Score(query, wrong)
	if scoredWrong.Components.Artist != -20 {
		t.Errorf("Expected artist -20, got %g", scoredWrong.Components.Artist)
	}
	// Two token matches (+30) and two leftover artist tokens (-20).
	if scoredWrong.Components.Title != 10 {
		t.Errorf("Expected title 10, got %g", scoredWrong.Components.Title)
	}
	if _, ok := detailValue(scoredWrong, "title.exact:lonely heart"); ok {
		t.Error("Partial title must not take the exact-match bonus")
	}

	ranked := e.Rank(query, []Candidate{wrong, perfect})
	if ranked[0].ExternalID != "perfect" {
		t.Errorf("Expected perfect match first, got %s", ranked[0].ExternalID)
	}
	if ranked[0].Score <= ranked[1].Score {
		t.Errorf("Expected perfect match to outrank: %g vs %g", ranked[0].Score, ranked[1].Score)
	}
}

func TestScore_TooShortPenalty(t *testing.T) {
	e := defaultEngine()
	query := Query{Artists: "Block & Crown", Title: "Lonely Heart", DurationMS: intPtr(240000)}
	short := Candidate{
		ExternalID:  "short",
		Title:       "Block & Crown - Lonely Heart",
		Channel:     strPtr("Block & Crown - Topic"),
		DurationSec: intPtr(120),
	}

	scored := e.Score(query, short)
	if scored.Components.Duration != -100 {
		t.Errorf("Expected duration -100, got %g", scored.Components.Duration)
	}
	if scored.Score != 50 {
		t.Errorf("Expected total 50, got %g", scored.Score)
	}
	if _, ok := detailValue(scored, "duration.too-short:-100"); !ok {
		t.Errorf("Expected too-short detail, got %+v", scored.Details)
	}
}

func TestScore_DurationBoundaries(t *testing.T) {
	e := defaultEngine()
	query := Query{Artists: "Artist", Title: "Song", DurationMS: intPtr(200000)}

	exact := e.Score(query, Candidate{Title: "Artist - Song", DurationSec: intPtr(200)})
	if exact.Components.Duration != 0 {
		t.Errorf("Expected 0 at equal duration, got %g", exact.Components.Duration)
	}

	atRatio := e.Score(query, Candidate{Title: "Artist - Song", DurationSec: intPtr(400)})
	if atRatio.Components.Duration != 30 {
		t.Errorf("Expected max bonus at max ratio, got %g", atRatio.Components.Duration)
	}

	beyond := e.Score(query, Candidate{Title: "Artist - Song", DurationSec: intPtr(900)})
	if beyond.Components.Duration != 30 {
		t.Errorf("Expected bonus capped beyond max ratio, got %g", beyond.Components.Duration)
	}

	halfway := e.Score(query, Candidate{Title: "Artist - Song", DurationSec: intPtr(300)})
	if halfway.Components.Duration != 15 {
		t.Errorf("Expected linear bonus 15 at ratio 1.5, got %g", halfway.Components.Duration)
	}

	missing := e.Score(query, Candidate{Title: "Artist - Song"})
	if missing.Components.Duration != 0 {
		t.Errorf("Expected 0 without candidate duration, got %g", missing.Components.Duration)
	}
}

func TestScore_ExtendedGateRequiresSolidMatch(t *testing.T) {
	e := defaultEngine()
	query := Query{Artists: "Artist", Title: "Song", DurationMS: intPtr(200000)}

	// Wrong artist and wrong title: the extended mention alone must not
	// score the bonus.
	noisy := Candidate{
		Title:       "Somebody Else - Different Tune (Extended Mix)",
		Channel:     strPtr("Random Channel"),
		DurationSec: intPtr(200),
	}
	scored := e.Score(query, noisy)
	if scored.Components.Extended != 0 {
		t.Errorf("Expected extended gate to fail, got %g", scored.Components.Extended)
	}
	if _, ok := detailValue(scored, "extended.gate-failed"); !ok {
		t.Errorf("Expected gate-failed detail, got %+v", scored.Details)
	}
}

func TestScore_RemainingPenaltyFloor(t *testing.T) {
	e := defaultEngine()
	query := Query{Artists: "Artist", Title: "Song", DurationMS: intPtr(200000)}
	noisy := Candidate{
		Title:       "Artist - Song best quality full album lyrics video official hd",
		DurationSec: intPtr(200),
	}

	scored := e.Score(query, noisy)
	// 8 leftover tokens would cost -80 raw; the floor holds it at -30.
	var remaining float64
	for _, d := range scored.Details {
		if d.Family == "title" && d.Value < 0 {
			remaining += d.Value
		}
	}
	if remaining != -30 {
		t.Errorf("Expected remaining penalty floored at -30, got %g", remaining)
	}
}

func TestRank_StableOrder(t *testing.T) {
	e := defaultEngine()
	query := Query{Artists: "Artist", Title: "Song", DurationMS: intPtr(200000)}
	candidates := []Candidate{
		{ExternalID: "a", Title: "Artist - Song", DurationSec: intPtr(200)},
		{ExternalID: "b", Title: "Artist - Song", DurationSec: intPtr(200)},
		{ExternalID: "c", Title: "Unrelated", DurationSec: intPtr(200)},
	}

	first := e.Rank(query, candidates)
	second := e.Rank(query, candidates)

	if first[0].ExternalID != "a" || first[1].ExternalID != "b" {
		t.Errorf("Expected ties to preserve input order, got %s %s", first[0].ExternalID, first[1].ExternalID)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("Expected identical output across runs")
	}
	if first[2].ExternalID != "c" {
		t.Errorf("Expected unrelated candidate last, got %s", first[2].ExternalID)
	}
}

func TestScore_ArtistMatchedInChannelOnly(t *testing.T) {
	e := defaultEngine()
	query := Query{Artists: "Artist", Title: "Song", DurationMS: intPtr(200000)}
	candidate := Candidate{
		Title:       "Song",
		Channel:     strPtr("ArtistVEVO"),
		DurationSec: intPtr(200),
	}

	scored := e.Score(query, candidate)
	if scored.Components.Artist != 50 {
		t.Errorf("Expected artist matched via channel, got %g", scored.Components.Artist)
	}
	// Channel matches never consume the working title, so the exact
	// title bonus is still reachable.
	if scored.Components.Title != 100 {
		t.Errorf("Expected exact title bonus, got %g", scored.Components.Title)
	}
}
