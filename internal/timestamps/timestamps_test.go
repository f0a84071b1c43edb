package timestamps

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.mp3")
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	mtime := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	created := time.Date(2023, 3, 20, 0, 0, 0, 0, time.UTC)
	if err := Apply(path, mtime, created); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(mtime) {
		t.Errorf("Expected mtime %v, got %v", mtime, info.ModTime())
	}
}

func TestApply_MissingFile(t *testing.T) {
	now := time.Now()
	if err := Apply(filepath.Join(t.TempDir(), "missing.mp3"), now, now); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestParseReleaseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2019-06-21", time.Date(2019, 6, 21, 0, 0, 0, 0, time.UTC), true},
		{"2019-06", time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC), true},
		{"2019", time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"junk", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseReleaseDate(tt.in)
		if ok != tt.ok {
			t.Errorf("ParseReleaseDate(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && !got.Equal(tt.want) {
			t.Errorf("ParseReleaseDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
