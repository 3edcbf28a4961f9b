//go:build linux

package platform

import (
	"os"

	"golang.org/x/sys/unix"
)

// preallocate reserves blocks for [offset, offset+length) without changing
// the file size, so a copy cut short by its source never grows the file.
//
//nolint:gosec // G115: fd values are small non-negative integers
func preallocate(fd *os.File, offset, length int64) {
	if length <= 0 {
		return
	}
	//nolint:errcheck // fallocate is advisory; not supported on all filesystems
	unix.Fallocate(int(fd.Fd()), unix.FALLOC_FL_KEEP_SIZE, offset, length)
}
