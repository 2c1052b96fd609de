package file

import (
	"crypto/sha256"
	"fmt"
	"math"
)

// ValidateForRead checks that an entry is safe to read from a source of the given size.
// It validates:
//   - File sizes are within maxFileSize limit (if limit > 0)
//   - Data offset + size doesn't overflow
//   - Data range is within source bounds
//   - The hash is a SHA256 digest
//   - Uncompressed entries store exactly their original size
func ValidateForRead(entry *Entry, sourceSize int64, maxFileSize uint64) error {
	if sourceSize < 0 {
		return ErrSizeOverflow
	}
	if maxFileSize > 0 && (entry.DataSize > maxFileSize || entry.OriginalSize > maxFileSize) {
		return ErrSizeOverflow
	}
	if entry.DataOffset > math.MaxUint64-entry.DataSize {
		return ErrSizeOverflow
	}
	if entry.DataOffset+entry.DataSize > uint64(sourceSize) {
		return ErrSizeOverflow
	}
	if entry.OriginalSize > math.MaxInt64 {
		return ErrSizeOverflow
	}
	if len(entry.Hash) != sha256.Size {
		return fmt.Errorf("invalid hash length: %d", len(entry.Hash))
	}
	if entry.Compression == CompressionNone && entry.DataSize != entry.OriginalSize {
		return fmt.Errorf("%w: size mismatch", ErrDecompression)
	}
	return nil
}
