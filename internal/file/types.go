// Package file reads archive entries from a byte source, decompressing and
// hashing them on the way out.
package file

import "github.com/meigma/templatex/internal/blobtype"

// Re-export types from blobtype to keep call sites short.
type (
	Entry       = blobtype.Entry
	Compression = blobtype.Compression
)

// Re-export compression constants.
const (
	CompressionNone = blobtype.CompressionNone
	CompressionZstd = blobtype.CompressionZstd
)

// Re-export sentinel errors.
var (
	ErrHashMismatch  = blobtype.ErrHashMismatch
	ErrDecompression = blobtype.ErrDecompression
	ErrSizeOverflow  = blobtype.ErrSizeOverflow
)
