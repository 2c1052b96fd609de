package archive

import (
	"errors"

	"github.com/meigma/templatex/internal/blobtype"
	"github.com/meigma/templatex/internal/write"
)

// Entry describes one file stored in an archive.
type Entry = blobtype.Entry

// Compression identifies how an entry's payload is stored.
type Compression = blobtype.Compression

// Compression algorithms.
const (
	CompressionNone = blobtype.CompressionNone
	CompressionZstd = blobtype.CompressionZstd
)

// ProgressEvent, ProgressStage and ProgressFunc report long-running work.
type (
	ProgressEvent = blobtype.ProgressEvent
	ProgressStage = blobtype.ProgressStage
	ProgressFunc  = blobtype.ProgressFunc
)

// Progress stages.
const (
	StageEnumerating = blobtype.StageEnumerating
	StageCompressing = blobtype.StageCompressing
	StageSigning     = blobtype.StageSigning
	StageValidating  = blobtype.StageValidating
	StageExtracting  = blobtype.StageExtracting
)

// SkipCompressionFunc returns true when a file should be stored uncompressed.
// It is called once per file and should be inexpensive.
type SkipCompressionFunc = write.SkipCompressionFunc

// DefaultSkipCompression returns a SkipCompressionFunc that skips small files
// and known already-compressed extensions.
var DefaultSkipCompression = write.DefaultSkipCompression

// Sentinel errors.
var (
	// ErrNotFound is returned when an input path or archive does not exist.
	ErrNotFound = errors.New("templatex: not found")

	// ErrTooManyFiles is returned when the input exceeds the file limit.
	ErrTooManyFiles = errors.New("templatex: too many files")

	// ErrInvalidArchive is returned when a container is malformed.
	ErrInvalidArchive = blobtype.ErrInvalidArchive

	// ErrHashMismatch is returned when entry content does not match its hash.
	ErrHashMismatch = blobtype.ErrHashMismatch

	// ErrDecompression is returned when an entry payload cannot be decoded.
	ErrDecompression = blobtype.ErrDecompression

	// ErrSizeOverflow is returned when sizes exceed representable limits.
	ErrSizeOverflow = blobtype.ErrSizeOverflow
)
