package platform

import (
	"crypto/rand"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns every backend available on this machine.
func backends(t *testing.T) map[string]Backend {
	t.Helper()
	out := map[string]Backend{
		"read_write":      StreamBackend{},
		"copy_file_range": newRangeBackend(),
	}
	ring, err := NewIOURingBackend(64)
	if err == nil && ring != nil {
		t.Cleanup(func() { ring.Close() })
		out["io_uring"] = ring
	}
	return out
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestCopyRangeBasic(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			data := []byte("hello, aio!")
			src := writeFile(t, dir, "src", data)
			dst := writeFile(t, dir, "dst", nil)

			result, err := b.CopyRange(CopyRangeParams{
				SrcPath: src,
				DstPath: dst,
				Length:  int64(len(data)),
			})
			require.NoError(t, err)
			assert.Equal(t, int64(len(data)), result.BytesWritten)

			got, err := os.ReadFile(dst)
			require.NoError(t, err)
			assert.Equal(t, data, got)
		})
	}
}

func TestCopyRangeLarge(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()

			// Many multiples of the 4 KiB stream buffer, plus a tail.
			size := 1<<20 + 123
			data := make([]byte, size)
			_, err := rand.Read(data)
			require.NoError(t, err)
			src := writeFile(t, dir, "src", data)
			dst := writeFile(t, dir, "dst", nil)

			result, err := b.CopyRange(CopyRangeParams{
				SrcPath: src,
				DstPath: dst,
				Length:  int64(size),
			})
			require.NoError(t, err)
			assert.Equal(t, int64(size), result.BytesWritten)

			got, err := os.ReadFile(dst)
			require.NoError(t, err)
			assert.Equal(t, data, got)
		})
	}
}

func TestCopyRangeOffsets(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			src := writeFile(t, dir, "src", []byte("AAAA_BBBB_CCCC"))
			dst := writeFile(t, dir, "dst", []byte("0123456789"))

			// Copy "BBBB" (offset 5, length 4) to offset 2 of the destination.
			result, err := b.CopyRange(CopyRangeParams{
				SrcPath:   src,
				DstPath:   dst,
				SrcOffset: 5,
				DstOffset: 2,
				Length:    4,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(4), result.BytesWritten)

			got, err := os.ReadFile(dst)
			require.NoError(t, err)
			assert.Equal(t, "01BBBB6789", string(got))
		})
	}
}

func TestCopyRangeShortSource(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			src := writeFile(t, dir, "src", []byte("short"))
			dst := writeFile(t, dir, "dst", []byte("xxxxxxxxxxxxxxxx"))

			result, err := b.CopyRange(CopyRangeParams{
				SrcPath: src,
				DstPath: dst,
				Length:  100,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(5), result.BytesWritten)

			got, err := os.ReadFile(dst)
			require.NoError(t, err)
			assert.Equal(t, "shortxxxxxxxxxxx", string(got), "destination size must not change")
		})
	}
}

func TestPreallocLength(t *testing.T) {
	src := writeFile(t, t.TempDir(), "src", []byte("0123456789"))
	fd, err := os.Open(src)
	require.NoError(t, err)
	defer fd.Close()

	tests := []struct {
		name           string
		offset, length int64
		want           int64
	}{
		{"within source", 2, 4, 4},
		{"clamped to source end", 4, 100, 6},
		{"offset at end", 10, 100, 0},
		{"offset past end", 20, 100, 0},
		{"zero length", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, preallocLength(fd, tt.offset, tt.length))
		})
	}
}

func TestCopyRangeMissingSource(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			dst := writeFile(t, dir, "dst", []byte("untouched"))

			_, err := b.CopyRange(CopyRangeParams{
				SrcPath: filepath.Join(dir, "nonexistent.txt"),
				DstPath: dst,
				Length:  4,
			})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrOpen))
			assert.True(t, errors.Is(err, fs.ErrNotExist))

			got, err := os.ReadFile(dst)
			require.NoError(t, err)
			assert.Equal(t, "untouched", string(got))
		})
	}
}

func TestCopyRangeMissingDestination(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "src", []byte("data"))
	dst := filepath.Join(dir, "missing")

	_, err := StreamBackend{}.CopyRange(CopyRangeParams{SrcPath: src, DstPath: dst, Length: 4})
	assert.ErrorIs(t, err, ErrOpen)

	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr), "copy must not create the destination")
}

func TestReadAt(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeFile(t, dir, "file.txt", []byte("0123456789"))

			buf := make([]byte, 4)
			n, err := b.ReadAt(path, 3, buf)
			require.NoError(t, err)
			assert.Equal(t, 4, n)
			assert.Equal(t, "3456", string(buf))

			// Reading past the end yields a short count.
			buf = make([]byte, 8)
			n, err = b.ReadAt(path, 6, buf)
			require.NoError(t, err)
			assert.Equal(t, 4, n)
			assert.Equal(t, "6789", string(buf[:n]))
		})
	}
}

func TestReadAtMissingLeavesBuffer(t *testing.T) {
	buf := []byte("keep")
	_, err := StreamBackend{}.ReadAt(filepath.Join(t.TempDir(), "nope"), 0, buf)
	assert.ErrorIs(t, err, ErrOpen)
	assert.Equal(t, "keep", string(buf))
}

func TestWriteAt(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeFile(t, dir, "file.txt", []byte("0123456789"))

			n, err := b.WriteAt(path, 10, []byte("Hello World"))
			require.NoError(t, err)
			assert.Equal(t, 11, n)

			got, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, "0123456789Hello World", string(got))
		})
	}
}

func TestWriteAtMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope")
	_, err := StreamBackend{}.WriteAt(path, 0, []byte("x"))
	assert.ErrorIs(t, err, ErrOpen)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestNewBackend(t *testing.T) {
	b, err := NewBackend(ReadWrite)
	require.NoError(t, err)
	assert.Equal(t, ReadWrite, b.Method())

	b, err = NewBackend(IOURing)
	require.NoError(t, err)
	defer b.Close()
	assert.Contains(t, []Method{IOURing, ReadWrite}, b.Method())
	if !KernelSupportsIOURing() {
		assert.Equal(t, ReadWrite, b.Method())
	}

	_, err = NewBackend(Method(99))
	assert.Error(t, err)
}

func TestIOURingDetection(t *testing.T) {
	// Just verify the function doesn't panic.
	supported := KernelSupportsIOURing()
	t.Logf("io_uring supported: %v", supported)
}

func TestMethodString(t *testing.T) {
	assert.Equal(t, "read_write", ReadWrite.String())
	assert.Equal(t, "copy_file_range", CopyFileRange.String())
	assert.Equal(t, "io_uring", IOURing.String())
	assert.Equal(t, "unknown", Method(99).String())
}

func TestParseMethod(t *testing.T) {
	for _, m := range []Method{ReadWrite, CopyFileRange, IOURing} {
		got, err := ParseMethod(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}

	got, err := ParseMethod("")
	require.NoError(t, err)
	assert.Equal(t, ReadWrite, got)

	_, err = ParseMethod("sendfile")
	assert.Error(t, err)
}
