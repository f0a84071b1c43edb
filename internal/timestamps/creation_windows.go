//go:build windows

package timestamps

import (
	"syscall"
	"time"
)

func setCreationTime(path string, ts time.Time) error {
	pathp, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	h, err := syscall.CreateFile(pathp, syscall.FILE_WRITE_ATTRIBUTES,
		syscall.FILE_SHARE_READ|syscall.FILE_SHARE_WRITE, nil,
		syscall.OPEN_EXISTING, syscall.FILE_ATTRIBUTE_NORMAL, 0)
	if err != nil {
		return err
	}
	defer syscall.CloseHandle(h) //nolint:errcheck // deferred cleanup

	ft := syscall.NsecToFiletime(ts.UnixNano())
	return syscall.SetFileTime(h, &ft, nil, nil)
}
