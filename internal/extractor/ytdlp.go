package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dperezm/tracknest/internal/constants"
	"github.com/dperezm/tracknest/internal/filesystem"
	"github.com/dperezm/tracknest/internal/logger"
)

// YtDlpClient shells out to yt-dlp for search and acquisition.
type YtDlpClient struct {
	ytDlpBin  string
	ffmpegBin string
	log       *logger.Logger
}

func NewYtDlp(ytDlpBin, ffmpegBin string, log *logger.Logger) *YtDlpClient {
	if ytDlpBin == "" {
		ytDlpBin = constants.DefaultYtDlpBin
	}
	if ffmpegBin == "" {
		ffmpegBin = constants.DefaultFfmpegBin
	}
	return &YtDlpClient{ytDlpBin: ytDlpBin, ffmpegBin: ffmpegBin, log: log.WithComponent("ytdlp")}
}

type searchEntry struct {
	ID         string   `json:"id"`
	DisplayID  string   `json:"display_id"`
	Title      string   `json:"title"`
	WebpageURL string   `json:"webpage_url"`
	Channel    string   `json:"channel"`
	Uploader   string   `json:"uploader"`
	Duration   *float64 `json:"duration"`
}

// Search pages through results by widening the ytsearch window. A ctx
// deadline maps to an empty result, matching the contract that a slow
// platform never fails a request.
func (c *YtDlpClient) Search(ctx context.Context, query string, opts SearchOptions) ([]RawCandidate, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = constants.DefaultSearchPageSize
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}

	seen := make(map[string]bool)
	var results []RawCandidate
	for page := 1; page <= maxPages; page++ {
		entries, err := c.runSearch(ctx, query, page*pageSize)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				c.log.Warn("search timed out", "query", query, "page", page)
				return results, nil
			}
			return nil, err
		}

		newOnPage := 0
		for _, entry := range entries {
			candidate, ok := entry.toCandidate()
			if !ok || seen[candidate.ExternalID] {
				continue
			}
			seen[candidate.ExternalID] = true
			results = append(results, candidate)
			newOnPage++
		}
		if newOnPage == 0 {
			break
		}
		if opts.ScoreFn != nil && bestScore(results, opts.ScoreFn) >= opts.StopScore {
			c.log.Debug("stop score reached", "query", query, "page", page)
			break
		}
	}
	return results, nil
}

func (e searchEntry) toCandidate() (RawCandidate, bool) {
	id := e.ID
	if id == "" {
		id = e.DisplayID
	}
	if id == "" {
		return RawCandidate{}, false
	}
	url := e.WebpageURL
	if url == "" {
		url = "https://www.youtube.com/watch?v=" + id
	}
	candidate := RawCandidate{ExternalID: id, Title: e.Title, URL: url}
	if channel := firstNonEmpty(e.Channel, e.Uploader); channel != "" {
		candidate.Channel = &channel
	}
	if e.Duration != nil {
		sec := int(*e.Duration)
		candidate.DurationSec = &sec
	}
	return candidate, true
}

func (c *YtDlpClient) runSearch(ctx context.Context, query string, limit int) ([]searchEntry, error) {
	args := []string{
		fmt.Sprintf("ytsearch%d:%s", limit, query),
		"--skip-download",
		"--dump-json",
		"--no-warnings",
		"--default-search", "ytsearch",
	}
	cmd := exec.CommandContext(ctx, c.ytDlpBin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("yt-dlp search failed: %w: %s", err, stderrPrefix(stderr.Bytes()))
	}

	var entries []searchEntry
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var entry searchEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Download runs yt-dlp with audio extraction and our ffmpeg tag rewrite.
// When the preferred format is mp3 and the conversion fails, it retries
// once with m4a before giving up.
func (c *YtDlpClient) Download(ctx context.Context, url string, opts DownloadOptions) (*DownloadResult, error) {
	if err := filesystem.EnsureDir(opts.OutputDir); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	outBase := filepath.Join(opts.OutputDir, opts.BaseName)
	if opts.TargetPath != "" {
		outBase = strings.TrimSuffix(opts.TargetPath, filepath.Ext(opts.TargetPath))
	}

	format := opts.PreferredFormat
	if format == "" {
		format = constants.DefaultPreferredFormat
	}

	if err := c.runDownload(ctx, url, outBase, format, opts); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if strings.EqualFold(format, "mp3") {
			c.log.Warn("mp3 conversion failed, retrying with m4a", "url", url, "error", err)
			if err2 := c.runDownload(ctx, url, outBase, "m4a", opts); err2 != nil {
				return nil, err2
			}
		} else {
			return nil, err
		}
	}

	produced := findProduced(outBase)
	if produced == "" {
		return nil, ErrNoOutput
	}

	info, err := os.Stat(produced)
	if err != nil {
		return nil, fmt.Errorf("failed to stat output: %w", err)
	}
	checksum, err := filesystem.ChecksumSHA256(produced)
	if err != nil {
		return nil, err
	}
	return &DownloadResult{
		Filepath:      produced,
		Container:     strings.TrimPrefix(filepath.Ext(produced), "."),
		FilesizeBytes: info.Size(),
		Checksum:      checksum,
	}, nil
}

func (c *YtDlpClient) runDownload(ctx context.Context, url, outBase, format string, opts DownloadOptions) error {
	args := buildDownloadArgs(url, outBase, format, c.ffmpegBin, opts)
	c.log.Info("running yt-dlp", "format", format, "url", url)

	cmd := exec.CommandContext(ctx, c.ytDlpBin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("yt-dlp download failed: %w: %s", err, stderrPrefix(stderr.Bytes()))
	}
	return nil
}

// buildDownloadArgs assembles the full argument list. Tags from the
// source are dropped (-map_metadata -1) and replaced with our own; mp3
// gets ID3v2.3 with a v1 tag for compatibility.
func buildDownloadArgs(url, outBase, format, ffmpegBin string, opts DownloadOptions) []string {
	args := []string{
		"-x", "--audio-format", format,
		"--ffmpeg-location", ffmpegBin,
		"--no-warnings",
	}
	if opts.EmbedThumbnail {
		args = append(args, "--embed-thumbnail")
	}
	if opts.CookiesFile != "" {
		args = append(args, "--cookies", opts.CookiesFile)
	}
	for _, extra := range opts.ExtractorArgs {
		if extra != "" {
			args = append(args, "--extractor-args", extra)
		}
	}

	ffmpegArgs := []string{"-map_metadata", "-1"}
	if strings.EqualFold(format, "mp3") {
		ffmpegArgs = append(ffmpegArgs, "-id3v2_version", "3", "-write_id3v1", "1")
	}
	for _, key := range sortedKeys(opts.Metadata) {
		ffmpegArgs = append(ffmpegArgs, fmt.Sprintf("-metadata %s=%s", key, quoteMetadata(opts.Metadata[key])))
	}
	args = append(args, "--ppa", "ffmpeg:"+strings.Join(ffmpegArgs, " "))

	args = append(args, "-o", outBase+".%(ext)s", url)
	return args
}

func quoteMetadata(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `'`) + `"`
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// findProduced probes the extensions yt-dlp can emit, preferred first.
func findProduced(outBase string) string {
	for _, ext := range []string{constants.ExtMP3, constants.ExtM4A, constants.ExtOpus, constants.ExtWebM} {
		path := outBase + ext
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func stderrPrefix(data []byte) string {
	if len(data) > constants.StderrCapturePrefix {
		data = data[:constants.StderrCapturePrefix]
	}
	return strings.TrimSpace(string(data))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func bestScore(candidates []RawCandidate, scoreFn func(RawCandidate) float64) float64 {
	best := 0.0
	for i, c := range candidates {
		s := scoreFn(c)
		if i == 0 || s > best {
			best = s
		}
	}
	return best
}
