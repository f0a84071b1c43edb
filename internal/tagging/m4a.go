package tagging

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// tagM4A remuxes through ffmpeg with -map_metadata -1, dropping source
// tags and writing ours. The audio stream is copied, not re-encoded.
func (t *Tagger) tagM4A(path string, tags TrackTags, cover []byte) error {
	var coverPath string
	if len(cover) > 0 {
		tmp, err := os.CreateTemp(filepath.Dir(path), ".cover.*.jpg")
		if err != nil {
			return fmt.Errorf("failed to stage cover: %w", err)
		}
		coverPath = tmp.Name()
		defer os.Remove(coverPath) //nolint:errcheck // temp cleanup
		if _, err := tmp.Write(cover); err != nil {
			tmp.Close() //nolint:errcheck // already failing
			return fmt.Errorf("failed to write cover: %w", err)
		}
		if err := tmp.Close(); err != nil {
			return err
		}
	}

	// Remux into a sibling temp file, then swap it in.
	outPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".retag" + filepath.Ext(path)
	defer os.Remove(outPath) //nolint:errcheck // gone after the rename on success

	args := []string{"-y", "-i", path}
	if coverPath != "" {
		args = append(args, "-i", coverPath)
	}
	args = append(args, "-map_metadata", "-1", "-map", "0:a")
	if coverPath != "" {
		args = append(args, "-map", "1:v", "-c:v", "copy", "-disposition:v:0", "attached_pic")
	}
	args = append(args, "-c:a", "copy")
	for _, kv := range []struct{ key, value string }{
		{"artist", tags.Artists},
		{"title", tags.Title},
		{"album", deref(tags.Album)},
		{"genre", deref(tags.Genre)},
		{"date", deref(tags.ReleaseDate)},
		{"grouping", deref(tags.ReleaseDate)},
	} {
		if kv.value != "" {
			args = append(args, "-metadata", kv.key+"="+kv.value)
		}
	}
	if tags.BPM != nil && *tags.BPM > 0 {
		args = append(args, "-metadata", fmt.Sprintf("tempo=%d", *tags.BPM))
	}
	args = append(args, outPath)

	cmd := exec.Command(t.ffmpegBin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg remux failed: %w: %s", err, lastLine(stderr.String()))
	}
	return os.Rename(outPath, path)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
