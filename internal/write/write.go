// Package write streams source files into an archive data section.
package write

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/meigma/templatex/internal/blobtype"
	"github.com/meigma/templatex/internal/file"
)

// Result describes one payload written to the data section.
type Result struct {
	// DataSize is the number of bytes written to the data section.
	DataSize uint64
	// OriginalSize is the number of bytes read from the source.
	OriginalSize uint64
	// Hash is the SHA256 of the uncompressed content.
	Hash []byte
}

// Entry streams src through the hash and optional compression pipeline into w.
//
// enc and buf are reused across calls. Pass a nil encoder for uncompressed
// writes. Only the first expectedSize bytes of src are consumed; a source
// that ends early is reported as an error.
func Entry(ctx context.Context, src io.Reader, w io.Writer, enc *zstd.Encoder, buf []byte, compression blobtype.Compression, expectedSize int64) (Result, error) {
	if expectedSize < 0 {
		return Result{}, errors.New("negative file size")
	}

	hasher := sha256.New()
	cw := &file.CountingWriter{W: w}
	cr := &file.CountingReader{R: io.LimitReader(src, expectedSize)}
	tee := io.TeeReader(cr, hasher)

	switch compression {
	case blobtype.CompressionNone:
		if _, err := file.CopyWithContext(ctx, cw, tee, buf); err != nil {
			return Result{}, wrapOverflowErr(err)
		}
	case blobtype.CompressionZstd:
		if enc == nil {
			return Result{}, errors.New("zstd compression requires an encoder")
		}
		enc.Reset(cw)
		if _, err := file.CopyWithContext(ctx, enc, tee, buf); err != nil {
			enc.Close()
			return Result{}, wrapOverflowErr(err)
		}
		if err := enc.Close(); err != nil {
			return Result{}, fmt.Errorf("close zstd encoder: %w", err)
		}
	default:
		return Result{}, fmt.Errorf("unknown compression algorithm: %d", compression)
	}

	if cr.N != uint64(expectedSize) {
		return Result{}, fmt.Errorf("file size changed while packing: expected %d, got %d", expectedSize, cr.N)
	}

	return Result{DataSize: cw.N, OriginalSize: cr.N, Hash: hasher.Sum(nil)}, nil
}

func wrapOverflowErr(err error) error {
	if errors.Is(err, file.ErrOverflow) {
		return blobtype.ErrSizeOverflow
	}
	return err
}
