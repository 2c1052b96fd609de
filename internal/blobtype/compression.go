// Package blobtype defines shared types used across the archive package and
// its internal packages. This avoids circular imports between archive and
// internal/file.
package blobtype

// Compression identifies the compression algorithm used for an entry.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseCompression maps a compression name back to its value.
func ParseCompression(s string) (Compression, bool) {
	switch s {
	case "none", "":
		return CompressionNone, true
	case "zstd":
		return CompressionZstd, true
	default:
		return CompressionNone, false
	}
}
