package platform

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// streamBufferSize is the intermediate buffer for file-to-file copies.
const streamBufferSize = 4096

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, streamBufferSize)
		return &b
	},
}

// StreamBackend moves data with pread/pwrite. Copies stream through a
// pooled 4 KiB buffer.
type StreamBackend struct{}

func (StreamBackend) Method() Method { return ReadWrite }
func (StreamBackend) Close() error   { return nil }

func (StreamBackend) ReadAt(path string, offset int64, dst []byte) (int, error) {
	fd, err := openRead(path)
	if err != nil {
		return 0, err
	}
	defer fd.Close()
	return preadFull(fd, dst, offset)
}

func (StreamBackend) WriteAt(path string, offset int64, src []byte) (int, error) {
	fd, err := openReadWrite(path)
	if err != nil {
		return 0, err
	}
	defer fd.Close()
	return pwriteFull(fd, src, offset)
}

func (StreamBackend) CopyRange(params CopyRangeParams) (CopyResult, error) {
	return copyReadWrite(params)
}

// copyReadWrite opens both ends and streams the range through a pooled buffer.
func copyReadWrite(params CopyRangeParams) (CopyResult, error) {
	srcFd, dstFd, err := openPair(params)
	if err != nil {
		return CopyResult{Method: ReadWrite}, err
	}
	defer srcFd.Close()
	defer dstFd.Close()

	preallocate(dstFd, params.DstOffset, preallocLength(srcFd, params.SrcOffset, params.Length))
	return streamRange(srcFd, dstFd, params)
}

// preallocLength clamps a copy length to the bytes the source can supply
// from srcOffset, so nothing is reserved past what will be written.
func preallocLength(src *os.File, srcOffset, length int64) int64 {
	fi, err := src.Stat()
	if err != nil {
		return 0
	}
	return max(min(length, fi.Size()-srcOffset), 0)
}

// streamRange copies params.Length bytes between already-open files.
func streamRange(srcFd, dstFd *os.File, params CopyRangeParams) (CopyResult, error) {
	bufp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufp)
	buf := *bufp

	var total int64
	for total < params.Length {
		toRead := min(int64(len(buf)), params.Length-total)

		n, err := unix.Pread(int(srcFd.Fd()), buf[:toRead], params.SrcOffset+total)
		if err != nil {
			return CopyResult{BytesWritten: total, Method: ReadWrite},
				fmt.Errorf("read %s: %w", params.SrcPath, err)
		}
		if n == 0 {
			break // short source
		}

		w, err := pwriteFull(dstFd, buf[:n], params.DstOffset+total)
		total += int64(w)
		if err != nil {
			return CopyResult{BytesWritten: total, Method: ReadWrite}, err
		}
	}

	return CopyResult{BytesWritten: total, Method: ReadWrite}, nil
}

// openPair opens the source for reading and the destination for update. The
// destination is not touched when the source cannot be opened.
func openPair(params CopyRangeParams) (*os.File, *os.File, error) {
	srcFd, err := openRead(params.SrcPath)
	if err != nil {
		return nil, nil, err
	}
	dstFd, err := openReadWrite(params.DstPath)
	if err != nil {
		srcFd.Close()
		return nil, nil, err
	}
	return srcFd, dstFd, nil
}

func openRead(path string) (*os.File, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	return fd, nil
}

// openReadWrite opens an existing file for update without truncating it.
func openReadWrite(path string) (*os.File, error) {
	fd, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	return fd, nil
}

// preadFull reads until buf is full or the file ends.
func preadFull(fd *os.File, buf []byte, offset int64) (int, error) {
	var read int
	for read < len(buf) {
		n, err := unix.Pread(int(fd.Fd()), buf[read:], offset+int64(read))
		if err != nil {
			return read, fmt.Errorf("read %s: %w", fd.Name(), err)
		}
		if n == 0 {
			break
		}
		read += n
	}
	return read, nil
}

// pwriteFull writes all of buf at offset.
func pwriteFull(fd *os.File, buf []byte, offset int64) (int, error) {
	var written int
	for written < len(buf) {
		w, err := unix.Pwrite(int(fd.Fd()), buf[written:], offset+int64(written))
		if err != nil {
			return written, fmt.Errorf("write %s: %w", fd.Name(), err)
		}
		if w == 0 {
			return written, fmt.Errorf("write %s: %w", fd.Name(), io.ErrShortWrite)
		}
		written += w
	}
	return written, nil
}

// isFallbackErr reports whether err means the accelerated path is
// unavailable and the stream path should be used instead.
func isFallbackErr(err error) bool {
	return errors.Is(err, unix.ENOSYS) ||
		errors.Is(err, unix.EXDEV) ||
		errors.Is(err, unix.EINVAL) ||
		errors.Is(err, unix.ENOTSUP) ||
		errors.Is(err, unix.EOPNOTSUPP)
}
