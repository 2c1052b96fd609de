package file

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
)

const (
	// DefaultMaxFileSize is the default maximum entry size (1GB).
	DefaultMaxFileSize = 1 << 30

	// DefaultMaxDecoderMemory is the default maximum decoder memory (256MB).
	DefaultMaxDecoderMemory = 256 << 20
)

// ByteSource provides random access to the data section.
type ByteSource interface {
	io.ReaderAt
	Size() int64
}

// Reader reads and verifies entry content from a ByteSource.
type Reader struct {
	source      ByteSource
	maxFileSize uint64
	pool        *DecompressPool
}

// Option configures a Reader.
type Option func(*readerConfig)

type readerConfig struct {
	maxFileSize      uint64
	maxDecoderMemory uint64
}

// WithMaxFileSize sets the maximum entry size limit.
// Set to 0 to disable the limit.
func WithMaxFileSize(limit uint64) Option {
	return func(c *readerConfig) {
		c.maxFileSize = limit
	}
}

// WithMaxDecoderMemory sets the maximum decoder memory limit.
// Set to 0 to disable the limit.
func WithMaxDecoderMemory(limit uint64) Option {
	return func(c *readerConfig) {
		c.maxDecoderMemory = limit
	}
}

// NewReader creates a Reader for entries stored in source.
func NewReader(source ByteSource, opts ...Option) *Reader {
	cfg := readerConfig{
		maxFileSize:      DefaultMaxFileSize,
		maxDecoderMemory: DefaultMaxDecoderMemory,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Reader{
		source:      source,
		maxFileSize: cfg.maxFileSize,
		pool:        NewDecompressPool(cfg.maxDecoderMemory),
	}
}

// CopyTo streams the uncompressed content of entry to dst and verifies it
// against the entry hash. dst may have received data when ErrHashMismatch
// is returned; callers must discard it.
func (r *Reader) CopyTo(ctx context.Context, entry *Entry, dst io.Writer, buf []byte) (uint64, error) {
	sum, n, err := r.stream(ctx, entry, dst, buf)
	if err != nil {
		return n, err
	}
	if !bytes.Equal(sum, entry.Hash) {
		return n, fmt.Errorf("%s: %w", entry.Path, ErrHashMismatch)
	}
	return n, nil
}

// Digest recomputes the SHA256 of the entry's current stored content
// without comparing it to the hash recorded in the index.
func (r *Reader) Digest(ctx context.Context, entry *Entry, buf []byte) ([]byte, error) {
	sum, _, err := r.stream(ctx, entry, io.Discard, buf)
	return sum, err
}

// ReadAll reads the entire content of an entry and verifies its hash.
func (r *Reader) ReadAll(ctx context.Context, entry *Entry) ([]byte, error) {
	var out bytes.Buffer
	if entry.OriginalSize <= r.maxFileSize || r.maxFileSize == 0 {
		out.Grow(int(min(entry.OriginalSize, 1<<20))) //nolint:gosec // bounded by min
	}
	if _, err := r.CopyTo(ctx, entry, &out, make([]byte, 32*1024)); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// stream decodes an entry into dst, returning the hash of the decoded bytes.
func (r *Reader) stream(ctx context.Context, entry *Entry, dst io.Writer, buf []byte) ([]byte, uint64, error) {
	if err := ValidateForRead(entry, r.source.Size(), r.maxFileSize); err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", entry.Path, err)
	}

	section := io.NewSectionReader(r.source, int64(entry.DataOffset), int64(entry.DataSize)) //nolint:gosec // bounds validated above

	var src io.Reader
	switch entry.Compression {
	case CompressionNone:
		src = section
	case CompressionZstd:
		dec, release, err := r.pool.Get(section)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrDecompression, err)
		}
		defer release()
		src = dec
	default:
		return nil, 0, fmt.Errorf("unknown compression algorithm: %d", entry.Compression)
	}

	hr := NewHashingReader(io.LimitReader(src, int64(entry.OriginalSize)), sha256.New()) //nolint:gosec // bounds validated above
	n, err := CopyWithContext(ctx, dst, hr, buf)
	if err != nil {
		return nil, n, mapReadError(entry, err)
	}
	if n != entry.OriginalSize {
		return nil, n, mapReadError(entry, io.ErrUnexpectedEOF)
	}
	if err := EnsureNoExtra(src); err != nil {
		return nil, n, mapReadError(entry, err)
	}
	return hr.Sum(), n, nil
}

// mapReadError converts read errors to appropriate error types.
func mapReadError(entry *Entry, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, ErrSizeOverflow), errors.Is(err, ErrOverflow):
		return fmt.Errorf("read %s: %w", entry.Path, ErrSizeOverflow)
	case entry.Compression == CompressionNone:
		return fmt.Errorf("read %s: %w", entry.Path, err)
	default:
		return fmt.Errorf("read %s: %w: %v", entry.Path, ErrDecompression, err)
	}
}
