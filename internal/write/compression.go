package write

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// SkipCompressionFunc returns true when a file should be stored uncompressed.
// It is called once per file and should be inexpensive.
type SkipCompressionFunc func(path string, info fs.FileInfo) bool

// DefaultMinCompressSize is the size below which files are stored raw.
// zstd frame overhead makes smaller payloads grow rather than shrink.
const DefaultMinCompressSize = 64

// DefaultSkipCompression returns a SkipCompressionFunc that skips small files
// and extensions whose content is already compressed.
func DefaultSkipCompression(minSize int64) SkipCompressionFunc {
	return func(path string, info fs.FileInfo) bool {
		if info != nil && minSize > 0 && info.Size() < minSize {
			return true
		}
		_, ok := precompressedExts[strings.ToLower(filepath.Ext(path))]
		return ok
	}
}

// ShouldSkip reports whether any predicate asks to store path uncompressed.
func ShouldSkip(path string, info fs.FileInfo, predicates []SkipCompressionFunc) bool {
	for _, fn := range predicates {
		if fn != nil && fn(path, info) {
			return true
		}
	}
	return false
}

var precompressedExts = map[string]struct{}{
	// archives
	".7z": {}, ".br": {}, ".bz2": {}, ".gz": {}, ".jar": {}, ".mstx": {},
	".nupkg": {}, ".rar": {}, ".tgz": {}, ".xz": {}, ".zip": {}, ".zst": {},
	// office documents are zip containers
	".docx": {}, ".pptx": {}, ".xlsx": {}, ".odt": {}, ".ods": {},
	// media
	".aac": {}, ".avif": {}, ".flac": {}, ".gif": {}, ".heic": {}, ".jpeg": {},
	".jpg": {}, ".mkv": {}, ".mov": {}, ".mp3": {}, ".mp4": {}, ".ogg": {},
	".opus": {}, ".png": {}, ".webm": {}, ".webp": {},
	// fonts and documents
	".pdf": {}, ".woff": {}, ".woff2": {},
}
