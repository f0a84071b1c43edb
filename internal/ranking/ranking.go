// Package ranking scores search candidates against a reference track.
// Scoring is deterministic and transparent: every applied rule leaves a
// detail entry, and equal scores keep their input order.
package ranking

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/dperezm/tracknest/internal/normalize"
)

// Query is the reference the candidates are matched against.
type Query struct {
	Artists    string
	Title      string
	DurationMS *int
}

// Candidate is one raw search result.
type Candidate struct {
	ID          int64
	ExternalID  string
	URL         string
	Title       string
	Channel     *string
	DurationSec *int
}

// Components breaks the total into the four scoring families.
type Components struct {
	Artist   float64 `json:"artist"`
	Title    float64 `json:"title"`
	Extended float64 `json:"extended"`
	Duration float64 `json:"duration"`
}

// Detail is one applied rule, displayed verbatim by consumers.
type Detail struct {
	Key    string  `json:"key"`
	Value  float64 `json:"value"`
	Family string  `json:"family"`
}

// Scored is a candidate with its score, component split and rule trail.
type Scored struct {
	Candidate
	Score      float64    `json:"score"`
	Components Components `json:"components"`
	Details    []Detail   `json:"details"`
}

type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Rank scores every candidate and returns them best first. The sort is
// stable, so equal scores preserve the input order.
func (e *Engine) Rank(query Query, candidates []Candidate) []Scored {
	scored := make([]Scored, len(candidates))
	for i, c := range candidates {
		scored[i] = e.Score(query, c)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

// Score evaluates a single candidate. The candidate title becomes a
// mutable working copy consumed as matches are awarded, so the same text
// never scores twice.
func (e *Engine) Score(query Query, candidate Candidate) Scored {
	ref := normalize.Track(query.Artists, query.Title)
	working := tokenize(normalize.SearchText(candidate.Title))

	var (
		components Components
		details    []Detail
	)
	add := func(family string, key string, value float64) {
		details = append(details, Detail{Key: key, Value: value, Family: family})
	}

	// Artist family: match each reference artist against the working
	// title first, then the cleaned channel name.
	channel := e.cleanChannel(candidate.Channel)
	for _, artist := range normalize.SplitArtists(query.Artists) {
		needle := tokenize(normalize.SearchText(artist))
		if len(needle) == 0 {
			continue
		}
		if idx := findSubsequence(working, needle); idx >= 0 {
			working = removeAt(working, idx, len(needle))
			components.Artist += e.cfg.ArtistBonusPerMatch
			add("artist", "artist.match:"+strings.Join(needle, " "), e.cfg.ArtistBonusPerMatch)
			continue
		}
		if channel != "" && strings.Contains(channel, strings.Join(needle, " ")) {
			components.Artist += e.cfg.ArtistBonusPerMatch
			add("artist", "artist.match:"+strings.Join(needle, " "), e.cfg.ArtistBonusPerMatch)
			continue
		}
		components.Artist += e.cfg.ArtistPenaltyPerMiss
		add("artist", "artist.miss:"+strings.Join(needle, " "), e.cfg.ArtistPenaltyPerMiss)
	}

	// Title family: exact match of the cleaned working title wins the
	// big bonus, otherwise tokens are matched one by one.
	refTokens := strings.Fields(ref.NormalizedTitle)
	titleScore := 0.0
	if len(refTokens) > 0 && strings.Join(wordTokens(working), " ") == ref.NormalizedTitle {
		titleScore += e.cfg.TitleExactMatchBonus
		add("title", "title.exact:"+ref.NormalizedTitle, e.cfg.TitleExactMatchBonus)
		for _, tok := range refTokens {
			if idx := indexOfToken(working, tok); idx >= 0 {
				working = removeAt(working, idx, 1)
			}
		}
	} else {
		for _, tok := range refTokens {
			if idx := indexOfToken(working, tok); idx >= 0 {
				working = removeAt(working, idx, 1)
				titleScore += e.cfg.TitleTokenBonusPerMatch
				add("title", "title.match:"+tok, e.cfg.TitleTokenBonusPerMatch)
			} else {
				titleScore += e.cfg.TitleTokenPenaltyPerMiss
				add("title", "title.miss:"+tok, e.cfg.TitleTokenPenaltyPerMiss)
			}
		}
	}

	// Extended mention is detected before the remaining-token penalty and
	// its tokens are excluded from it.
	joined := strings.Join(working, " ")
	extendedMention := false
	leftover := working
	for _, keyword := range e.cfg.ExtendedKeywords {
		if !strings.Contains(joined, keyword) {
			continue
		}
		extendedMention = true
		kw := tokenize(keyword)
		if idx := findSubsequence(leftover, kw); idx >= 0 {
			leftover = removeAt(leftover, idx, len(kw))
		}
	}

	remainingPenalty := 0.0
	if remaining := wordTokens(leftover); len(remaining) > 0 {
		remainingPenalty = float64(len(remaining)) * e.cfg.TitleRemainingTokenPenalty
		if remainingPenalty < e.cfg.TitleRemainingTokenPenaltyMax {
			remainingPenalty = e.cfg.TitleRemainingTokenPenaltyMax
		}
		add("title", "title.remaining:"+strings.Join(remaining, " "), remainingPenalty)
	}
	components.Title = titleScore + remainingPenalty

	// Extended bonus only lands on top of an already-solid match. The
	// gate reads the title score before the remaining penalty.
	if extendedMention {
		if -remainingPenalty <= e.cfg.ExtendedMaxRemainingPenaltyAllowed &&
			components.Artist >= e.cfg.ExtendedMinArtistScore &&
			titleScore >= e.cfg.ExtendedMinTitleScore {
			components.Extended = e.cfg.ExtendedLargeBonus
			add("extended", "extended.bonus", e.cfg.ExtendedLargeBonus)
		} else {
			add("extended", "extended.gate-failed", 0)
		}
	}

	components.Duration = e.scoreDuration(query.DurationMS, candidate.DurationSec, add)

	total := components.Artist + components.Title + components.Extended + components.Duration
	return Scored{
		Candidate:  candidate,
		Score:      total,
		Components: components,
		Details:    details,
	}
}

// scoreDuration compares candidate and reference durations. Shorter than
// the reference is punished hard; longer earns a bonus growing linearly
// up to DurationMaxRatio and capped there.
func (e *Engine) scoreDuration(refMS, candidateSec *int, add func(family, key string, value float64)) float64 {
	if refMS == nil || candidateSec == nil {
		return 0
	}
	ref := float64(*refMS) / 1000.0
	cand := float64(*candidateSec)
	if ref <= 0 {
		return 0
	}

	delta := cand - ref
	if delta < 0 {
		add("duration", fmt.Sprintf("duration.too-short:%g", e.cfg.DurationPenaltyTooShort), e.cfg.DurationPenaltyTooShort)
		return e.cfg.DurationPenaltyTooShort
	}
	if delta == 0 {
		add("duration", "duration.exact", 0)
		return 0
	}

	ratio := cand / ref
	frac := (ratio - 1) / (e.cfg.DurationMaxRatio - 1)
	if frac > 1 {
		frac = 1
	}
	bonus := e.cfg.DurationMinBonus + frac*(e.cfg.DurationMaxBonus-e.cfg.DurationMinBonus)
	add("duration", fmt.Sprintf("duration.bonus:%g", bonus), bonus)
	return bonus
}

// cleanChannel normalizes a channel name and strips well-known platform
// suffixes so "Artist - Topic" matches "Artist".
func (e *Engine) cleanChannel(channel *string) string {
	if channel == nil {
		return ""
	}
	cleaned := normalize.SearchText(*channel)
	for _, suffix := range e.cfg.ChannelSuffixes {
		cleaned = strings.TrimSuffix(cleaned, strings.TrimSpace(normalize.SearchText(suffix)))
		cleaned = strings.TrimSpace(cleaned)
	}
	return cleaned
}

func tokenize(text string) []string {
	return strings.Fields(text)
}

// wordTokens drops symbol-only tokens like a lone dash.
func wordTokens(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if hasWordChar(tok) {
			out = append(out, tok)
		}
	}
	return out
}

func hasWordChar(token string) bool {
	for _, r := range token {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func indexOfToken(tokens []string, token string) int {
	for i, tok := range tokens {
		if tok == token {
			return i
		}
	}
	return -1
}

// findSubsequence locates needle as a contiguous token run in haystack.
func findSubsequence(haystack, needle []string) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func removeAt(tokens []string, idx, count int) []string {
	out := make([]string, 0, len(tokens)-count)
	out = append(out, tokens[:idx]...)
	out = append(out, tokens[idx+count:]...)
	return out
}
