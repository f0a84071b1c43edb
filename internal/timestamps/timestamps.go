// Package timestamps stamps library files with a track's release date so
// directory listings sort the way the catalog does.
package timestamps

import (
	"fmt"
	"os"
	"time"
)

// Apply sets the file's access and modification times to mtime. Creation
// time is set to created on platforms that expose it; elsewhere it is a
// no-op.
func Apply(path string, mtime, created time.Time) error {
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		return fmt.Errorf("failed to set file times: %w", err)
	}
	if err := setCreationTime(path, created); err != nil {
		return fmt.Errorf("failed to set creation time: %w", err)
	}
	return nil
}

// ParseReleaseDate turns a stored release date into a stamp time. The
// full YYYY-MM-DD form is preferred; a bare year maps to January 1st.
func ParseReleaseDate(date string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, date); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
