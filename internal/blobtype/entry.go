package blobtype

import (
	"io/fs"
	"time"
)

// Entry represents one packaged file.
type Entry struct {
	// Path is the file path relative to the packaged root (e.g., "Locations/SampleContent.txt").
	Path string

	// DataOffset is the byte offset of the payload within the data section.
	DataOffset uint64

	// DataSize is the stored size of the payload.
	// For compressed entries, this is the compressed size.
	DataSize uint64

	// OriginalSize is the uncompressed size in bytes.
	// Equal to DataSize for uncompressed entries.
	OriginalSize uint64

	// Hash is the SHA256 hash of the uncompressed content.
	Hash []byte

	// Mode is the file's permission bits.
	Mode fs.FileMode

	// ModTime is the file's modification time.
	ModTime time.Time

	// Compression is the algorithm used to compress this entry.
	Compression Compression
}
