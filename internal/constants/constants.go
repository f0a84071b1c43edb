// Package constants contains application-wide constants to avoid magic numbers and strings.
package constants

import "time"

// Application defaults
const (
	DefaultPort               = "8080"
	DefaultDBPath             = "tracknest.db"
	DefaultLibraryDir         = "library"
	DefaultPreferredFormat    = "mp3"
	DefaultConcurrency        = 2
	DefaultQueueCapacity      = 1024
	DefaultHistoryKeep        = 30
	DefaultHistorySweepEvery  = 1 * time.Minute
	DefaultSearchLimit        = 10
	DefaultSearchTimeout      = 8 * time.Second
	DefaultSearchMaxPages     = 3
	DefaultSearchPageSize     = 10
	DefaultSearchStopScore    = 120.0
	DefaultMinAutochooseScore = 60.0
	DefaultSearchParallelism  = 2
	DefaultHTTPTimeout        = 5 * time.Minute
	ImageHTTPTimeout          = 30 * time.Second
	DefaultLogBufferLines     = 200
	StderrCapturePrefix       = 2048 // bytes of subprocess stderr kept on failure
)

// External binaries
const (
	DefaultYtDlpBin  = "yt-dlp"
	DefaultFfmpegBin = "ffmpeg"
)

// MIME types
const (
	MimeTypeMP3  = "audio/mpeg"
	MimeTypeMP4  = "audio/mp4"
	MimeTypeFLAC = "audio/flac"
	MimeTypeWAV  = "audio/wav"
	MimeTypeJPEG = "image/jpeg"
)

// File extensions
const (
	ExtMP3  = ".mp3"
	ExtM4A  = ".m4a"
	ExtMP4  = ".mp4"
	ExtFLAC = ".flac"
	ExtOpus = ".opus"
	ExtWebM = ".webm"
)

// SpotifyCoverHost marks Spotify-origin cover URLs; covers from this host
// win over extractor thumbnails when embedding.
const SpotifyCoverHost = "i.scdn.co"

// StagingDirName is the in-library directory downloads land in before
// they are published; the scanner skips it.
const StagingDirName = ".incoming"

// File permissions
const (
	DirPermissions  = 0755
	FilePermissions = 0644
)

// Characters to sanitize from filesystem paths
const InvalidPathChars = "<>:\"/\\|?*"

// MaxFilenameLen bounds the base name of library files.
const MaxFilenameLen = 180
