package sampling

import (
	"crypto/sha256"
	"fmt"
	"os"
)

// SampleSize is the hash sample width in bytes (spec §4.D).
const SampleSize = 32

// ErrFileTooShort is returned when the encrypted file is shorter than a
// single sample.
var ErrFileTooShort = fmt.Errorf("sampling: file too short")

// ErrOffsetTooLarge is returned when an offset's sample would read past
// EOF.
var ErrOffsetTooLarge = fmt.Errorf("sampling: offset too large")

// SampleFile opens path for random access and, for each offset in offsets,
// reads the sampleSize-byte block at offset*sampleSize into a running
// SHA-256 hasher. It returns the final 32-byte digest.
//
// Given fixed (file contents, offsets), two calls return the same digest
// (spec invariant 3).
func SampleFile(path string, offsets []uint64) ([32]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return [32]byte{}, fmt.Errorf("sampling: open: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return [32]byte{}, fmt.Errorf("sampling: stat: %w", err)
	}
	fileLen := info.Size()

	if fileLen < SampleSize {
		return [32]byte{}, ErrFileTooShort
	}

	maxOffset := (uint64(fileLen) - SampleSize) / SampleSize

	h := sha256.New()
	buf := make([]byte, SampleSize)

	for _, o := range offsets {
		if o > maxOffset {
			return [32]byte{}, ErrOffsetTooLarge
		}

		if _, err := f.ReadAt(buf, int64(o)*SampleSize); err != nil {
			return [32]byte{}, fmt.Errorf("sampling: read offset %d: %w", o, err)
		}
		h.Write(buf)
	}

	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest, nil
}
