package ranking

// Config holds every scoring constant in one place. The algorithm code
// never hardcodes a number.
type Config struct {
	ArtistBonusPerMatch  float64
	ArtistPenaltyPerMiss float64

	TitleExactMatchBonus          float64
	TitleTokenBonusPerMatch       float64
	TitleTokenPenaltyPerMiss      float64
	TitleRemainingTokenPenalty    float64
	TitleRemainingTokenPenaltyMax float64 // signed floor on the aggregate

	ExtendedKeywords                   []string
	ExtendedLargeBonus                 float64
	ExtendedMaxRemainingPenaltyAllowed float64
	ExtendedMinArtistScore             float64
	ExtendedMinTitleScore              float64

	DurationPenaltyTooShort float64
	DurationMaxRatio        float64
	DurationMinBonus        float64
	DurationMaxBonus        float64

	// ChannelSuffixes are stripped from channel names before artist
	// matching ("Artist - Topic" counts as "Artist").
	ChannelSuffixes []string
}

func DefaultConfig() Config {
	return Config{
		ArtistBonusPerMatch:  50,
		ArtistPenaltyPerMiss: -20,

		TitleExactMatchBonus:          100,
		TitleTokenBonusPerMatch:       15,
		TitleTokenPenaltyPerMiss:      -10,
		TitleRemainingTokenPenalty:    -10,
		TitleRemainingTokenPenaltyMax: -30,

		ExtendedKeywords:                   []string{"extended", "club", "original mix"},
		ExtendedLargeBonus:                 40,
		ExtendedMaxRemainingPenaltyAllowed: 25,
		ExtendedMinArtistScore:             30,
		ExtendedMinTitleScore:              15,

		DurationPenaltyTooShort: -100,
		DurationMaxRatio:        2.0,
		DurationMinBonus:        0,
		DurationMaxBonus:        30,

		ChannelSuffixes: []string{" - topic", " - official", " - audio", " official", " music", "vevo"},
	}
}
