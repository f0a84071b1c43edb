// Package normalize provides pure, deterministic helpers for canonicalizing
// track metadata. All functions are side-effect free: the same input always
// produces the same output, byte for byte.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	// remix/edit and live/remaster descriptors removed from clean titles
	featureRE = regexp.MustCompile(`(?i)\b(extended mix|club mix|original mix|radio edit|edit|remix|live( version)?|remastered?( \d{2,4})?)\b`)

	// "feat. X", "ft. X", "featuring X" including the featured names
	featClauseRE = regexp.MustCompile(`(?i)\b(feat\.?|ft\.?|featuring)\b\s*([^()\-]+)`)
	// just the marker, used when attributing featured names to artists
	featMarkerRE = regexp.MustCompile(`(?i)\b(feat\.?|ft\.?|featuring)\b`)

	parensRE     = regexp.MustCompile(`\([^)]*\)`)
	dashSuffixRE = regexp.MustCompile(`\s*-\s*[^\-()]+$`)

	spacedXRE = regexp.MustCompile(`(?i)\s+x\s+`)
	timesRE   = regexp.MustCompile(`\s*×\s*`)
	plusRE    = regexp.MustCompile(`\s*\+\s*`)
	slashRE   = regexp.MustCompile(`\s*/\s*`)
	andRE     = regexp.MustCompile(`(?i)\s*\band\b\s*`)
	withRE    = regexp.MustCompile(`(?i)\s*\bwith\b\s*`)

	dupAmpRE    = regexp.MustCompile(`\s*&\s*&\s*`)
	dupCommaRE  = regexp.MustCompile(`\s*,\s*,\s*`)
	commaSpRE   = regexp.MustCompile(`\s*,\s*`)
	ampSpRE     = regexp.MustCompile(`\s*&\s*`)
	multiSpRE   = regexp.MustCompile(`\s+`)
	punctRE     = regexp.MustCompile(`[^a-zA-Z0-9&,+/\\'\- ]+`)
	remixFlagRE = regexp.MustCompile(`(?i)\b(remix|edit|mix)\b`)
	liveFlagRE  = regexp.MustCompile(`(?i)\blive\b`)
	remasterRE  = regexp.MustCompile(`(?i)\bremaster(ed)?\b`)

	artistSplitRE = regexp.MustCompile(`(?i)\s*(,|&| x | and )\s*`)
)

// Normalized is the canonical form of a (artists, title) pair plus the
// descriptor flags extracted from the raw strings.
type Normalized struct {
	PrimaryArtist     string `json:"primary_artist"`
	CleanArtists      string `json:"clean_artists"`
	CleanTitle        string `json:"clean_title"`
	NormalizedArtists string `json:"normalized_artists"`
	NormalizedTitle   string `json:"normalized_title"`
	IsRemixOrEdit     bool   `json:"is_remix_or_edit"`
	IsLive            bool   `json:"is_live"`
	IsRemaster        bool   `json:"is_remaster"`
}

// Tokens splits the normalized title on whitespace. Used by the ranking
// engine for token-level matching.
func (n Normalized) Tokens() []string {
	return strings.Fields(n.NormalizedTitle)
}

// normalizeDashes replaces unicode dash variants with a plain hyphen and
// collapses whitespace. Hyphens inside names ("Jay-Z") survive.
func normalizeDashes(text string) string {
	text = strings.ReplaceAll(text, "–", "-")
	text = strings.ReplaceAll(text, "—", "-")
	return strings.TrimSpace(multiSpRE.ReplaceAllString(text, " "))
}

// normalizeSeparators unifies collaboration separators to "&". A bare "x"
// is a separator only when space-delimited so names like "Ausmax" survive.
func normalizeSeparators(artists string) string {
	s := normalizeDashes(artists)
	s = spacedXRE.ReplaceAllString(s, " & ")
	s = timesRE.ReplaceAllString(s, " & ")
	s = plusRE.ReplaceAllString(s, " & ")
	s = slashRE.ReplaceAllString(s, " & ")
	s = andRE.ReplaceAllString(s, " & ")
	s = withRE.ReplaceAllString(s, " & ")
	s = dupAmpRE.ReplaceAllString(s, " & ")
	s = dupCommaRE.ReplaceAllString(s, ", ")
	s = commaSpRE.ReplaceAllString(s, ", ")
	s = ampSpRE.ReplaceAllString(s, " & ")
	return strings.TrimSpace(multiSpRE.ReplaceAllString(s, " "))
}

// StripAccents decomposes unicode and drops combining marks, with manual
// replacements for letters that do not decompose (ø, æ, œ, ß).
func StripAccents(text string) string {
	decomposed := norm.NFKD.String(text)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		switch r {
		case 'ø':
			b.WriteString("o")
		case 'Ø':
			b.WriteString("O")
		case 'æ':
			b.WriteString("ae")
		case 'Æ':
			b.WriteString("AE")
		case 'œ':
			b.WriteString("oe")
		case 'Œ':
			b.WriteString("OE")
		case 'ß':
			b.WriteString("ss")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func cleanPunctuation(text string) string {
	text = punctRE.ReplaceAllString(text, " ")
	return strings.TrimSpace(multiSpRE.ReplaceAllString(text, " "))
}

func extractPrimaryArtist(artists string) string {
	parts := artistSplitRE.Split(artists, 2)
	if len(parts) == 0 {
		return strings.TrimSpace(artists)
	}
	return strings.TrimSpace(parts[0])
}

// Track normalizes an (artists, title) pair. Feature clauses are removed
// from the title and attributed to the artists; version descriptors,
// bracketed content and dash suffixes are stripped from the title; the
// remix/live/remaster flags are detected on the original strings so
// bracketed keywords are not missed.
func Track(artists, title string) Normalized {
	origArtists := normalizeSeparators(artists)
	origTitle := normalizeDashes(title)

	// Attribute featured names from the title to the artists before
	// removing the clause from the title.
	featured := make([]string, 0, 2)
	for _, m := range featClauseRE.FindAllStringSubmatch(origTitle, -1) {
		if name := strings.TrimSpace(m[2]); name != "" {
			featured = append(featured, name)
		}
	}
	titleNoFeat := featClauseRE.ReplaceAllString(origTitle, "")

	// Inside the artists string the feat marker is just another separator.
	artistsNoFeat := featMarkerRE.ReplaceAllString(origArtists, "&")
	for _, name := range featured {
		artistsNoFeat += " & " + name
	}
	artistsNoFeat = normalizeSeparators(artistsNoFeat)

	titleBase := parensRE.ReplaceAllString(titleNoFeat, "")
	titleBase = dashSuffixRE.ReplaceAllString(titleBase, "")

	flagsSrc := origTitle + " " + origArtists
	isRemixOrEdit := remixFlagRE.MatchString(flagsSrc)
	isLive := liveFlagRE.MatchString(flagsSrc)
	isRemaster := remasterRE.MatchString(flagsSrc)

	titleBase = featureRE.ReplaceAllString(titleBase, "")

	cleanArtists := cleanPunctuation(normalizeSeparators(StripAccents(artistsNoFeat)))
	cleanTitle := cleanPunctuation(StripAccents(titleBase))

	primary := extractPrimaryArtist(cleanArtists)

	return Normalized{
		PrimaryArtist:     primary,
		CleanArtists:      cleanArtists,
		CleanTitle:        cleanTitle,
		NormalizedArtists: strings.ToLower(cleanArtists),
		NormalizedTitle:   strings.ToLower(cleanTitle),
		IsRemixOrEdit:     isRemixOrEdit,
		IsLive:            isLive,
		IsRemaster:        isRemaster,
	}
}

// SearchText canonicalizes free text from search results: lowercase,
// accents stripped, punctuation cleaned. Unlike Track it keeps bracketed
// content, so version descriptors like "(Extended Mix)" survive for the
// ranking engine to inspect.
func SearchText(text string) string {
	return strings.ToLower(cleanPunctuation(StripAccents(normalizeDashes(text))))
}

// SplitArtists splits a collaboration string on commas only. Ampersand
// groups like "Block & Crown" stay together; the ranking engine treats
// them as a single artist token.
func SplitArtists(artists string) []string {
	parts := strings.Split(artists, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DurationsCloseMS reports whether both durations are present and within
// tolerance, in milliseconds.
func DurationsCloseMS(aMS, bMS *int, toleranceMS int) bool {
	if aMS == nil || bMS == nil {
		return false
	}
	if toleranceMS < 0 {
		toleranceMS = 0
	}
	d := *aMS - *bMS
	if d < 0 {
		d = -d
	}
	return d <= toleranceMS
}

// DurationDeltaSec returns the absolute delta in seconds when both values
// are present.
func DurationDeltaSec(aMS, bMS *int) (float64, bool) {
	if aMS == nil || bMS == nil {
		return 0, false
	}
	d := *aMS - *bMS
	if d < 0 {
		d = -d
	}
	return float64(d) / 1000.0, true
}
