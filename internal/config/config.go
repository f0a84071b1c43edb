package config

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dperezm/tracknest/internal/constants"
)

// Config holds all application configuration
type Config struct {
	Port       string
	DBPath     string
	LibraryDir string
	SecretKey  string

	// Spotify OAuth
	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyRedirectURI  string

	// Extractor
	YtDlpBin             string
	FfmpegBin            string
	PreferredAudioFormat string
	CookiesFile          string
	ExtractorArgs        string
	EmbedThumbnail       bool
	DownloadFake         bool
	SearchFake           bool
	SearchFallbackFake   bool

	// Search tuning
	SearchLimit             int
	SearchTimeout           time.Duration
	SearchMaxPages          int
	SearchPageSize          int
	SearchPageStopThreshold float64
	MinAutochooseScore      float64

	// Scheduler
	Concurrency           int
	HistoryKeep           int
	DisableDownloadWorker bool
	SimulateSeconds       float64

	// HTTP
	CORSOrigins []string
	LogLevel    string
	LogFormat   string
}

// Load loads configuration from environment variables with defaults.
// A .env file in the working directory is honored but never overrides
// variables already present in the environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:       getEnv("PORT", constants.DefaultPort),
		DBPath:     getEnv("DATABASE_URL", constants.DefaultDBPath),
		LibraryDir: getEnv("LIBRARY_DIR", constants.DefaultLibraryDir),
		SecretKey:  getEnv("SECRET_KEY", ""),

		SpotifyClientID:     getEnv("SPOTIFY_CLIENT_ID", ""),
		SpotifyClientSecret: getEnv("SPOTIFY_CLIENT_SECRET", ""),
		SpotifyRedirectURI:  getEnv("SPOTIFY_REDIRECT_URI", ""),

		YtDlpBin:             getEnv("YT_DLP_BIN", constants.DefaultYtDlpBin),
		FfmpegBin:            getEnv("FFMPEG_BIN", constants.DefaultFfmpegBin),
		PreferredAudioFormat: getEnv("PREFERRED_AUDIO_FORMAT", constants.DefaultPreferredFormat),
		CookiesFile:          getEnv("COOKIES_FILE", ""),
		ExtractorArgs:        getEnv("DOWNLOAD_YTDLP_EXTRACTOR_ARGS", ""),
		EmbedThumbnail:       getBool("DOWNLOAD_EMBED_THUMBNAIL", true),
		DownloadFake:         getBool("DOWNLOAD_FAKE", false),
		SearchFake:           getBool("YOUTUBE_SEARCH_FAKE", false),
		SearchFallbackFake:   getBool("YOUTUBE_SEARCH_FALLBACK_FAKE", false),

		SearchLimit:             getInt("YOUTUBE_SEARCH_LIMIT", constants.DefaultSearchLimit),
		SearchTimeout:           getDuration("YOUTUBE_SEARCH_TIMEOUT", constants.DefaultSearchTimeout),
		SearchMaxPages:          getInt("YOUTUBE_SEARCH_MAX_PAGES", constants.DefaultSearchMaxPages),
		SearchPageSize:          getInt("YOUTUBE_SEARCH_PAGE_SIZE", constants.DefaultSearchPageSize),
		SearchPageStopThreshold: getFloat("YOUTUBE_SEARCH_PAGE_STOP_THRESHOLD", constants.DefaultSearchStopScore),
		MinAutochooseScore:      getFloat("MIN_AUTOCHOOSE_SCORE", constants.DefaultMinAutochooseScore),

		Concurrency:           getInt("DOWNLOAD_CONCURRENCY", constants.DefaultConcurrency),
		HistoryKeep:           getInt("DOWNLOAD_HISTORY_KEEP", constants.DefaultHistoryKeep),
		DisableDownloadWorker: getBool("DISABLE_DOWNLOAD_WORKER", false),
		SimulateSeconds:       getFloat("DOWNLOAD_SIMULATE_SECONDS", 0),

		CORSOrigins: splitCSV(getEnv("CORS_ORIGINS", "")),
		LogLevel:    getEnv("APP_LOG_LEVEL", "info"),
		LogFormat:   getEnv("APP_LOG_FORMAT", "text"),
	}
}

// Validate validates the configuration and returns detailed errors
func (c *Config) Validate() error {
	var errs []string

	if c.Port == "" {
		errs = append(errs, "PORT cannot be empty")
	} else if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("PORT must be a valid number, got: %s", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT must be between 1 and 65535, got: %d", port))
	}

	if c.DBPath == "" {
		errs = append(errs, "DATABASE_URL cannot be empty")
	}
	if c.LibraryDir == "" {
		errs = append(errs, "LIBRARY_DIR cannot be empty")
	}

	switch strings.ToLower(c.PreferredAudioFormat) {
	case "mp3", "m4a", "opus", "flac":
	default:
		errs = append(errs, fmt.Sprintf("PREFERRED_AUDIO_FORMAT must be one of: mp3, m4a, opus, flac, got: %s", c.PreferredAudioFormat))
	}

	if c.Concurrency < 1 {
		errs = append(errs, fmt.Sprintf("DOWNLOAD_CONCURRENCY must be >= 1, got: %d", c.Concurrency))
	}
	if c.SearchMaxPages < 1 {
		errs = append(errs, fmt.Sprintf("YOUTUBE_SEARCH_MAX_PAGES must be >= 1, got: %d", c.SearchMaxPages))
	}
	if c.SearchPageSize < 1 {
		errs = append(errs, fmt.Sprintf("YOUTUBE_SEARCH_PAGE_SIZE must be >= 1, got: %d", c.SearchPageSize))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		errs = append(errs, fmt.Sprintf("APP_LOG_LEVEL must be one of: debug, info, warn, error, got: %s", c.LogLevel))
	}
	validLogFormats := map[string]bool{"text": true, "json": true}
	if !validLogFormats[c.LogFormat] {
		errs = append(errs, fmt.Sprintf("APP_LOG_FORMAT must be one of: text, json, got: %s", c.LogFormat))
	}

	// The extractor binary is required unless every extractor touchpoint is faked.
	if !c.DownloadFake || !c.SearchFake {
		if _, err := exec.LookPath(c.YtDlpBin); err != nil {
			errs = append(errs, fmt.Sprintf("extractor binary %q not found in PATH (set YT_DLP_BIN or enable DOWNLOAD_FAKE/YOUTUBE_SEARCH_FAKE)", c.YtDlpBin))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getDuration accepts either a Go duration string ("8s") or a bare number of seconds.
func getDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	v = strings.TrimSpace(v)
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
