package platform

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrOpen wraps every failure to open a path for the requested mode.
var ErrOpen = errors.New("open failed")

// Method identifies which syscall strategy a backend uses.
type Method int

const (
	ReadWrite     Method = iota // pread/pwrite through a fixed buffer
	CopyFileRange               // Linux copy_file_range(2) for file-to-file ranges
	IOURing                     // Linux io_uring
)

func (m Method) String() string {
	switch m {
	case ReadWrite:
		return "read_write"
	case CopyFileRange:
		return "copy_file_range"
	case IOURing:
		return "io_uring"
	default:
		return "unknown"
	}
}

// ParseMethod parses a method name as printed by Method.String.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "read_write":
		return ReadWrite, nil
	case "copy_file_range":
		return CopyFileRange, nil
	case "io_uring":
		return IOURing, nil
	default:
		return ReadWrite, fmt.Errorf("unknown I/O method %q", s)
	}
}

// CopyResult reports the outcome of a copy.
type CopyResult struct {
	BytesWritten int64
	Method       Method
}

// CopyRangeParams describes a file-to-file range copy. The copy stops early,
// without error, if the source runs out of data.
type CopyRangeParams struct {
	SrcPath   string
	DstPath   string
	SrcOffset int64
	DstOffset int64
	Length    int64
}

// Backend executes raw positional I/O against paths. Each call opens and
// closes its files. Backends are driven from a single goroutine.
type Backend interface {
	// ReadAt reads up to len(dst) bytes at offset. A short file yields a
	// short count and no error.
	ReadAt(path string, offset int64, dst []byte) (int, error)
	// WriteAt writes all of src at offset. The file must already exist.
	WriteAt(path string, offset int64, src []byte) (int, error)
	CopyRange(params CopyRangeParams) (CopyResult, error)
	Method() Method
	Close() error
}

// NewBackend returns a backend for the requested method. Methods the running
// kernel or OS cannot provide degrade to ReadWrite; check Method() on the
// result to see what was selected.
func NewBackend(method Method) (Backend, error) {
	switch method {
	case ReadWrite:
		return StreamBackend{}, nil
	case CopyFileRange:
		return newRangeBackend(), nil
	case IOURing:
		b, err := NewIOURingBackend(64)
		if err != nil {
			// Commonly EPERM under seccomp sandboxes.
			slog.Debug("io_uring unavailable, using read_write", "error", err)
			return StreamBackend{}, nil
		}
		if b == nil {
			return StreamBackend{}, nil
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown I/O method %d", method)
	}
}
