package filesystem

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dperezm/tracknest/internal/constants"
)

// Sanitize strips characters that are invalid in filenames, collapses
// whitespace and enforces the filename length cap.
func Sanitize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if strings.ContainsRune(constants.InvalidPathChars, r) {
			return '_'
		}
		return r
	}, s)
	mapped = strings.Join(strings.Fields(mapped), " ")
	mapped = strings.TrimRight(mapped, ". ")
	if len(mapped) > constants.MaxFilenameLen {
		mapped = strings.TrimRight(mapped[:constants.MaxFilenameLen], ". ")
	}
	return mapped
}

func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// ChecksumSHA256 hashes the file in chunks.
func ChecksumSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// UniquePath returns path if free, otherwise "name (2).ext",
// "name (3).ext" and so on.
func UniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

func MoveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	// Cross-device fallback: copy then remove.
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close() //nolint:errcheck // read-only handle

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()    //nolint:errcheck // already failing
		os.Remove(dst) //nolint:errcheck // cleanup of partial copy
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
