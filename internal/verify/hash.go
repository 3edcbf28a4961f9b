// Package verify checksums file ranges with BLAKE3 so a copy can be checked
// after its batch completes.
package verify

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// ErrMismatch is returned by CompareRanges when the checksums differ.
var ErrMismatch = errors.New("checksum mismatch")

// HashRange hashes up to length bytes of path starting at offset. A file
// shorter than the range hashes only what is there; the byte count actually
// hashed is returned alongside the digest.
func HashRange(path string, offset, length int64) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	buf := make([]byte, 32*1024)
	n, err := io.CopyBuffer(h, io.NewSectionReader(f, offset, length), buf)
	if err != nil {
		return "", n, fmt.Errorf("hash %s [%d,+%d): %w", path, offset, length, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// CompareRanges checks that length bytes of src at srcOffset match the same
// number of bytes of dst at dstOffset. Ranges of different available length
// mismatch.
func CompareRanges(src string, srcOffset int64, dst string, dstOffset, length int64) error {
	srcSum, srcN, err := HashRange(src, srcOffset, length)
	if err != nil {
		return err
	}
	// Only the bytes the source could supply were copied.
	dstSum, dstN, err := HashRange(dst, dstOffset, srcN)
	if err != nil {
		return err
	}
	if srcN != dstN || srcSum != dstSum {
		return fmt.Errorf("%w: %s@%d (%d bytes, %s) vs %s@%d (%d bytes, %s)",
			ErrMismatch, src, srcOffset, srcN, srcSum[:16], dst, dstOffset, dstN, dstSum[:16])
	}
	return nil
}
