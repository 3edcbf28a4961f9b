//go:build linux

package platform

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// RangeBackend copies file-to-file ranges in the kernel with
// copy_file_range(2), falling back to streaming on unsupported or
// cross-device errors. Reads and writes use pread/pwrite.
type RangeBackend struct {
	StreamBackend
}

func newRangeBackend() Backend { return RangeBackend{} }

func (RangeBackend) Method() Method { return CopyFileRange }

func (RangeBackend) CopyRange(params CopyRangeParams) (CopyResult, error) {
	srcFd, dstFd, err := openPair(params)
	if err != nil {
		return CopyResult{Method: CopyFileRange}, err
	}
	defer srcFd.Close()
	defer dstFd.Close()

	preallocate(dstFd, params.DstOffset, preallocLength(srcFd, params.SrcOffset, params.Length))

	roff := params.SrcOffset
	woff := params.DstOffset
	remaining := params.Length

	var total int64
	for remaining > 0 {
		n, err := unix.CopyFileRange(int(srcFd.Fd()), &roff, int(dstFd.Fd()), &woff, int(remaining), 0)
		if err != nil {
			if total == 0 && isFallbackErr(err) {
				return streamRange(srcFd, dstFd, params)
			}
			return CopyResult{BytesWritten: total, Method: CopyFileRange},
				fmt.Errorf("copy_file_range %s -> %s: %w", params.SrcPath, params.DstPath, err)
		}
		if n == 0 {
			break // short source
		}
		remaining -= int64(n)
		total += int64(n)
	}

	return CopyResult{BytesWritten: total, Method: CopyFileRange}, nil
}
