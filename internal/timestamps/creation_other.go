//go:build !windows

package timestamps

import "time"

// Creation time is not settable through portable syscalls here.
func setCreationTime(string, time.Time) error {
	return nil
}
