package archive

import (
	"log/slog"

	"github.com/meigma/templatex/internal/write"
)

// DefaultMaxFiles is the default limit used when no MaxFiles option is set.
const DefaultMaxFiles = 200_000

// ChangeDetection controls how strictly file changes are detected during creation.
type ChangeDetection uint8

const (
	ChangeDetectionNone ChangeDetection = iota
	ChangeDetectionStrict
)

// createConfig holds configuration for archive creation.
type createConfig struct {
	compression     Compression
	changeDetection ChangeDetection
	skipCompression []SkipCompressionFunc
	maxFiles        int
	contentType     string
	entryName       string
	exclude         []string
	logger          *slog.Logger
	progress        ProgressFunc
}

func defaultCreateConfig() createConfig {
	return createConfig{
		compression:     CompressionZstd,
		skipCompression: []SkipCompressionFunc{write.DefaultSkipCompression(write.DefaultMinCompressSize)},
	}
}

// CreateOption configures archive creation.
type CreateOption func(*createConfig)

// CreateWithCompression sets the compression algorithm to use.
// The default is CompressionZstd.
func CreateWithCompression(c Compression) CreateOption {
	return func(cfg *createConfig) {
		cfg.compression = c
	}
}

// CreateWithChangeDetection controls whether the writer verifies files did not
// change while being packed. The default skips the extra stat calls.
func CreateWithChangeDetection(cd ChangeDetection) CreateOption {
	return func(cfg *createConfig) {
		cfg.changeDetection = cd
	}
}

// CreateWithSkipCompression adds predicates that decide to store a file
// uncompressed. If any predicate returns true, compression is skipped for that
// file. DefaultSkipCompression is always consulted.
func CreateWithSkipCompression(fns ...SkipCompressionFunc) CreateOption {
	return func(cfg *createConfig) {
		cfg.skipCompression = append(cfg.skipCompression, fns...)
	}
}

// CreateWithMaxFiles limits the number of files included in the archive.
// Zero uses DefaultMaxFiles. Negative means no limit.
func CreateWithMaxFiles(n int) CreateOption {
	return func(cfg *createConfig) {
		cfg.maxFiles = n
	}
}

// CreateWithContentType records an opaque content type label. The label is
// covered by the manifest digest and therefore by any signature.
func CreateWithContentType(contentType string) CreateOption {
	return func(cfg *createConfig) {
		cfg.contentType = contentType
	}
}

// CreateWithEntryName sets the archive path of a single-file input.
// It is ignored for directory inputs. The default is the file's base name.
func CreateWithEntryName(name string) CreateOption {
	return func(cfg *createConfig) {
		cfg.entryName = name
	}
}

// CreateWithExclude names files that are never packed, such as the archive
// being written. Files are matched by identity, so any path to the same file
// excludes it. Paths that do not exist are ignored.
func CreateWithExclude(paths ...string) CreateOption {
	return func(cfg *createConfig) {
		cfg.exclude = append(cfg.exclude, paths...)
	}
}

// CreateWithLogger sets the logger for archive creation.
func CreateWithLogger(logger *slog.Logger) CreateOption {
	return func(cfg *createConfig) {
		cfg.logger = logger
	}
}

// CreateWithProgress sets a callback that receives enumeration and
// compression progress.
func CreateWithProgress(fn ProgressFunc) CreateOption {
	return func(cfg *createConfig) {
		cfg.progress = fn
	}
}
