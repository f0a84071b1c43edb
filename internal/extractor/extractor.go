// Package extractor wraps the external media tool behind a capability
// interface so the scheduler can run against either the real binary or a
// deterministic fake.
package extractor

import (
	"context"
	"errors"
)

// ErrNoOutput is returned when the tool exits cleanly but no audio file
// shows up in the output directory.
var ErrNoOutput = errors.New("extractor produced no output file")

// RawCandidate is one unscored search result.
type RawCandidate struct {
	ExternalID  string
	Title       string
	URL         string
	Channel     *string
	DurationSec *int
}

// SearchOptions bound a paged search. ScoreFn, when set, is consulted
// after each page so the search can stop early once StopScore is reached.
type SearchOptions struct {
	PageSize  int
	MaxPages  int
	StopScore float64
	ScoreFn   func(RawCandidate) float64
}

// DownloadOptions steer a single extraction.
type DownloadOptions struct {
	OutputDir       string
	BaseName        string // sanitized, no extension
	TargetPath      string // non-empty: overwrite this exact path
	PreferredFormat string
	EmbedThumbnail  bool
	CookiesFile     string
	ExtractorArgs   []string
	Metadata        map[string]string // ffmpeg -metadata key=value pairs
}

// DownloadResult describes the produced file.
type DownloadResult struct {
	Filepath      string
	Container     string
	FilesizeBytes int64
	Checksum      string
}

// Client is the capability the core depends on.
type Client interface {
	// Search returns candidates for a free-text query. A wall-clock
	// timeout on ctx yields an empty list, not an error.
	Search(ctx context.Context, query string, opts SearchOptions) ([]RawCandidate, error)
	// Download fetches the audio behind url into the library directory.
	Download(ctx context.Context, url string, opts DownloadOptions) (*DownloadResult, error)
}

// Split routes searches and downloads to different clients, so either
// side can run faked while the other hits the real binary.
type Split struct {
	Searcher   Client
	Downloader Client
}

func (s Split) Search(ctx context.Context, query string, opts SearchOptions) ([]RawCandidate, error) {
	return s.Searcher.Search(ctx, query, opts)
}

func (s Split) Download(ctx context.Context, url string, opts DownloadOptions) (*DownloadResult, error) {
	return s.Downloader.Download(ctx, url, opts)
}

// SearchFallback consults Backup when the primary search errors or comes
// back empty, typically a fake behind YOUTUBE_SEARCH_FALLBACK_FAKE so a
// blocked network still yields candidates.
type SearchFallback struct {
	Primary Client
	Backup  Client
}

func (f SearchFallback) Search(ctx context.Context, query string, opts SearchOptions) ([]RawCandidate, error) {
	results, err := f.Primary.Search(ctx, query, opts)
	if err == nil && len(results) > 0 {
		return results, nil
	}
	return f.Backup.Search(ctx, query, opts)
}

func (f SearchFallback) Download(ctx context.Context, url string, opts DownloadOptions) (*DownloadResult, error) {
	return f.Primary.Download(ctx, url, opts)
}
