package extractor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dperezm/tracknest/internal/constants"
	"github.com/dperezm/tracknest/internal/filesystem"
)

var fakeQueryRE = regexp.MustCompile(`[^a-zA-Z0-9 ]+`)

// FakeClient returns canned search results and writes placeholder files.
// Every automated test that crosses the extractor boundary runs on it.
type FakeClient struct{}

func NewFake() *FakeClient {
	return &FakeClient{}
}

// Search fabricates three candidates around the query: a plain match, an
// extended mix, and a noisy miss, so ranking has something to separate.
func (c *FakeClient) Search(_ context.Context, query string, _ SearchOptions) ([]RawCandidate, error) {
	base := strings.TrimSpace(fakeQueryRE.ReplaceAllString(query, ""))
	channelA := "Channel A"
	channelDJ := "DJ Channel"
	channelOther := "Other"
	d180, d200, d175 := 180, 200, 175
	return []RawCandidate{
		{
			ExternalID:  "fake1",
			Title:       base + " (Official Video)",
			URL:         "https://youtu.be/fake1",
			Channel:     &channelA,
			DurationSec: &d180,
		},
		{
			ExternalID:  "fake2",
			Title:       base + " (Extended Mix)",
			URL:         "https://youtu.be/fake2",
			Channel:     &channelDJ,
			DurationSec: &d200,
		},
		{
			ExternalID:  "fake3",
			Title:       "Random Other " + base,
			URL:         "https://youtu.be/fake3",
			Channel:     &channelOther,
			DurationSec: &d175,
		},
	}, nil
}

// Download writes a placeholder with a minimal ID3 header. Not valid
// audio, but enough for tests that check file existence and bookkeeping.
func (c *FakeClient) Download(_ context.Context, url string, opts DownloadOptions) (*DownloadResult, error) {
	if err := filesystem.EnsureDir(opts.OutputDir); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	path := opts.TargetPath
	if path == "" {
		path = filepath.Join(opts.OutputDir, opts.BaseName+constants.ExtMP3)
	}

	header := append([]byte("ID3"), 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00)
	payload := []byte("Fake audio for " + url + "\n")
	if err := os.WriteFile(path, append(header, payload...), constants.FilePermissions); err != nil {
		return nil, fmt.Errorf("failed to write placeholder: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	checksum, err := filesystem.ChecksumSHA256(path)
	if err != nil {
		return nil, err
	}
	return &DownloadResult{
		Filepath:      path,
		Container:     strings.TrimPrefix(filepath.Ext(path), "."),
		FilesizeBytes: info.Size(),
		Checksum:      checksum,
	}, nil
}
