package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"sync"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/templatex/internal/batch"
	"github.com/meigma/templatex/internal/file"
	"github.com/meigma/templatex/internal/index"
	"github.com/meigma/templatex/manifest"
	"github.com/meigma/templatex/signature"
)

// DefaultMaxMetadataSize bounds the index, manifest and signature sections
// read into memory by Open (64MB).
const DefaultMaxMetadataSize = 64 << 20

// Archive is an open container.
//
// The index, manifest and signature sections are loaded eagerly by Open;
// entry content is read on demand. Archive is safe for concurrent reads.
type Archive struct {
	f            *os.File
	path         string
	trailer      trailer
	idx          *index.Index
	manifestData []byte
	manifest     *manifest.Manifest
	sigData      []byte
	reader       *file.Reader
	workers      int
	logger       *slog.Logger
}

type openConfig struct {
	maxFileSize      uint64
	maxDecoderMemory uint64
	maxMetadataSize  uint64
	workers          int
	logger           *slog.Logger
}

// OpenOption configures Open.
type OpenOption func(*openConfig)

// OpenWithMaxFileSize limits the uncompressed size of any entry.
// Zero disables the limit.
func OpenWithMaxFileSize(limit uint64) OpenOption {
	return func(cfg *openConfig) {
		cfg.maxFileSize = limit
	}
}

// OpenWithMaxDecoderMemory limits zstd decoder memory.
// Zero disables the limit.
func OpenWithMaxDecoderMemory(limit uint64) OpenOption {
	return func(cfg *openConfig) {
		cfg.maxDecoderMemory = limit
	}
}

// OpenWithMaxMetadataSize limits the size of each metadata section.
// Zero uses DefaultMaxMetadataSize.
func OpenWithMaxMetadataSize(limit uint64) OpenOption {
	return func(cfg *openConfig) {
		cfg.maxMetadataSize = limit
	}
}

// OpenWithWorkers sets the number of entries ContentManifest digests
// concurrently. Values < 0 force serial processing; zero picks a count
// from GOMAXPROCS and the entry sizes.
func OpenWithWorkers(n int) OpenOption {
	return func(cfg *openConfig) {
		cfg.workers = n
	}
}

// OpenWithLogger sets the logger for reads.
func OpenWithLogger(logger *slog.Logger) OpenOption {
	return func(cfg *openConfig) {
		cfg.logger = logger
	}
}

// Open opens the container at path and loads its metadata.
//
// Open checks the container framing, decodes the index, and confirms that
// the stored manifest is the canonical manifest of the index. It does not
// read entry content or verify signatures.
func Open(path string, opts ...OpenOption) (*Archive, error) {
	cfg := openConfig{
		maxFileSize:      file.DefaultMaxFileSize,
		maxDecoderMemory: file.DefaultMaxDecoderMemory,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxMetadataSize == 0 {
		cfg.maxMetadataSize = DefaultMaxMetadataSize
	}

	f, err := os.Open(path) //nolint:gosec // caller-provided path is intentional
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	a, err := load(f, path, &cfg)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return a, nil
}

func load(f *os.File, path string, cfg *openConfig) (*Archive, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size < int64(headerSize+trailerSize) {
		return nil, fmt.Errorf("%w: file too small", ErrInvalidArchive)
	}

	head := make([]byte, headerSize)
	if _, err := f.ReadAt(head, 0); err != nil {
		return nil, err
	}
	if err := decodeHeader(head); err != nil {
		return nil, err
	}
	tail := make([]byte, trailerSize)
	if _, err := f.ReadAt(tail, size-int64(trailerSize)); err != nil {
		return nil, err
	}
	t, err := decodeTrailer(tail)
	if err != nil {
		return nil, err
	}
	if err := t.validate(size); err != nil {
		return nil, err
	}

	read := func(s section, what string) ([]byte, error) {
		if s.Length > cfg.maxMetadataSize {
			return nil, fmt.Errorf("%w: %s section is %d bytes", ErrSizeOverflow, what, s.Length)
		}
		b := make([]byte, s.Length)
		if _, err := f.ReadAt(b, int64(s.Offset)); err != nil { //nolint:gosec // validated by trailer.validate
			return nil, fmt.Errorf("read %s: %w", what, err)
		}
		return b, nil
	}
	indexData, err := read(t.Index, "index")
	if err != nil {
		return nil, err
	}
	manifestData, err := read(t.Manifest, "manifest")
	if err != nil {
		return nil, err
	}
	sigData, err := read(t.Signature, "signature")
	if err != nil {
		return nil, err
	}

	idx, err := index.Decode(indexData)
	if err != nil {
		return nil, err
	}
	if idx.DataSize != t.dataSize() {
		return nil, fmt.Errorf("%w: index data size %d, container data size %d", ErrInvalidArchive, idx.DataSize, t.dataSize())
	}
	m, err := checkManifest(idx, manifestData)
	if err != nil {
		return nil, err
	}

	data := io.NewSectionReader(f, headerSize, int64(t.dataSize())) //nolint:gosec // validated by trailer.validate
	return &Archive{
		f:            f,
		path:         path,
		trailer:      t,
		idx:          idx,
		manifestData: manifestData,
		manifest:     m,
		sigData:      sigData,
		reader:       file.NewReader(data, file.WithMaxFileSize(cfg.maxFileSize), file.WithMaxDecoderMemory(cfg.maxDecoderMemory)),
		workers:      cfg.workers,
		logger:       cfg.logger,
	}, nil
}

// checkManifest parses the stored manifest and requires it to match the
// index exactly, byte for byte in canonical form.
func checkManifest(idx *index.Index, data []byte) (*manifest.Manifest, error) {
	m, err := manifest.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	want, err := buildManifest(idx.ContentType, idx.Entries)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	canonical, err := want.Canonical()
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(canonical, data) {
		return nil, fmt.Errorf("%w: manifest does not match index", ErrInvalidArchive)
	}
	return m, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger
}

// Close releases the underlying file.
func (a *Archive) Close() error {
	return a.f.Close()
}

// Path returns the path the archive was opened from.
func (a *Archive) Path() string {
	return a.path
}

// ContentType returns the content type label recorded at pack time.
func (a *Archive) ContentType() string {
	return a.idx.ContentType
}

// Len returns the number of entries.
func (a *Archive) Len() int {
	return a.idx.Len()
}

// Entries returns all entries in path order. The slice must not be modified.
func (a *Archive) Entries() []Entry {
	return a.idx.Entries
}

// Entry returns the entry stored at path. path is normalized first.
func (a *Archive) Entry(path string) (Entry, bool) {
	return a.idx.Lookup(NormalizePath(path))
}

// EntriesWithPrefix iterates over entries under a directory prefix.
// An empty prefix or "." yields every entry.
func (a *Archive) EntriesWithPrefix(prefix string) iter.Seq[Entry] {
	p := NormalizePath(prefix)
	if p == "." {
		p = ""
	} else {
		p += "/"
	}
	return a.idx.EntriesWithPrefix(p)
}

// DataSize returns the size of the data section.
func (a *Archive) DataSize() uint64 {
	return a.trailer.dataSize()
}

// VerifyData hashes the whole data section and compares it with the
// checksum recorded in the index at pack time. An archive without a
// recorded checksum passes.
func (a *Archive) VerifyData(ctx context.Context) error {
	if len(a.idx.DataHash) == 0 {
		return nil
	}
	h := sha256.New()
	data := io.NewSectionReader(a.f, headerSize, int64(a.trailer.dataSize())) //nolint:gosec // validated on open
	buf := make([]byte, 256*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := data.Read(buf)
		h.Write(buf[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read data section: %w", err)
		}
	}
	if !bytes.Equal(h.Sum(nil), a.idx.DataHash) {
		return fmt.Errorf("%w: data section checksum", ErrHashMismatch)
	}
	return nil
}

// Manifest returns the stored manifest.
func (a *Archive) Manifest() *manifest.Manifest {
	return a.manifest
}

// ManifestBytes returns the stored canonical manifest.
func (a *Archive) ManifestBytes() []byte {
	return a.manifestData
}

// ManifestDigest returns the digest of the stored manifest.
func (a *Archive) ManifestDigest() digest.Digest {
	return digest.FromBytes(a.manifestData)
}

// Signed reports whether the archive carries a signature block.
func (a *Archive) Signed() bool {
	return len(a.sigData) > 0
}

// SignatureBytes returns the raw signature block, or nil when unsigned.
func (a *Archive) SignatureBytes() []byte {
	if len(a.sigData) == 0 {
		return nil
	}
	return a.sigData
}

// Signature decodes the signature block. It returns (nil, nil) for an
// unsigned archive.
func (a *Archive) Signature() (*signature.Block, error) {
	if len(a.sigData) == 0 {
		return nil, nil
	}
	return signature.Parse(a.sigData)
}

// CopyEntry writes the content of e to dst, verifying it against the hash
// recorded in the index. buf may be nil.
func (a *Archive) CopyEntry(ctx context.Context, e *Entry, dst io.Writer, buf []byte) (uint64, error) {
	if buf == nil {
		buf = make([]byte, 32*1024)
	}
	return a.reader.CopyTo(ctx, e, dst, buf)
}

// ReadFile returns the verified content of the entry at path.
func (a *Archive) ReadFile(ctx context.Context, path string) ([]byte, error) {
	e, ok := a.Entry(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return a.reader.ReadAll(ctx, &e)
}

// ContentManifest recomputes the manifest from the bytes currently stored
// in the data section.
//
// Each entry is decoded and hashed afresh; the hashes recorded in the index
// are not consulted. The result therefore reflects tampering with entry
// payloads even when the index was left alone. progress may be nil.
func (a *Archive) ContentManifest(ctx context.Context, progress ProgressFunc) (*manifest.Manifest, error) {
	entries := make([]manifest.Entry, a.Len())
	var (
		mu        sync.Mutex
		bytesDone uint64
		filesDone int
	)
	proc := batch.New(batch.WithWorkers(a.workers), batch.WithLogger(a.logger))
	err := proc.Run(ctx, a.idx.Entries, func(ctx context.Context, i int, e *Entry, buf []byte) error {
		sum, err := a.reader.Digest(ctx, e, buf)
		if err != nil {
			return err
		}
		if !bytes.Equal(sum, e.Hash) {
			a.log().Debug("entry content differs from index", "path", e.Path,
				"index", hex.EncodeToString(e.Hash), "content", hex.EncodeToString(sum))
		}
		entries[i] = manifest.EntryFromSHA256(e.Path, sum)

		if progress == nil {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		bytesDone += e.OriginalSize
		filesDone++
		progress(ProgressEvent{
			Stage:      StageValidating,
			Path:       e.Path,
			BytesDone:  bytesDone,
			FilesDone:  filesDone,
			FilesTotal: len(entries),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return manifest.Build(a.idx.ContentType, entries)
}
