package blobtype

import "errors"

// Sentinel errors for archive format operations.
var (
	// ErrHashMismatch is returned when entry content does not match its hash.
	ErrHashMismatch = errors.New("templatex: hash verification failed")

	// ErrDecompression is returned when decompression fails.
	ErrDecompression = errors.New("templatex: decompression failed")

	// ErrSizeOverflow is returned when byte counts exceed supported limits.
	ErrSizeOverflow = errors.New("templatex: size overflow")

	// ErrInvalidArchive is returned when the container structure is malformed.
	ErrInvalidArchive = errors.New("templatex: invalid archive")
)
