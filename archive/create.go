package archive

import (
	"cmp"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"

	"github.com/meigma/templatex/internal/file"
	"github.com/meigma/templatex/internal/index"
	"github.com/meigma/templatex/internal/write"
	"github.com/meigma/templatex/manifest"
)

// Result summarizes a written archive.
type Result struct {
	// Entries lists the packed entries in path order.
	Entries []Entry
	// Manifest is the manifest stored in the archive.
	Manifest *manifest.Manifest
	// ManifestDigest is the digest a signature over this archive binds to.
	ManifestDigest digest.Digest
	// Size is the total number of bytes written.
	Size uint64
}

// Create packs input into a container written to w.
//
// input may be a directory or a regular file. A directory is walked
// recursively; every regular file becomes an entry named by its path
// relative to input. Empty directories are not preserved and symbolic
// links inside the tree are skipped. A single file becomes one entry named
// by CreateWithEntryName, or its base name.
//
// Entries are written in byte-wise path order, so the same tree always
// produces the same index and manifest. The returned Result carries the
// manifest digest needed for signing.
func Create(ctx context.Context, input string, w io.Writer, opts ...CreateOption) (*Result, error) {
	cfg := defaultCreateConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	info, err := os.Stat(input)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, input)
		}
		return nil, err
	}

	c := &creator{cfg: cfg}
	c.log().Info("creating archive", "input", input, "compression", cfg.compression.String())
	c.reportProgress(StageEnumerating, "", 0, 0, 0, 0)

	var (
		root    *os.Root
		sources []source
	)
	switch {
	case info.IsDir():
		root, err = os.OpenRoot(input)
		if err != nil {
			return nil, err
		}
		sources, err = c.enumerate(ctx, root)
	case info.Mode().IsRegular():
		// A single-file input is named explicitly, so a symlink to it is followed.
		resolved, evalErr := filepath.EvalSymlinks(input)
		if evalErr != nil {
			return nil, evalErr
		}
		root, err = os.OpenRoot(filepath.Dir(resolved))
		if err != nil {
			return nil, err
		}
		sources, err = c.single(filepath.Base(input), filepath.Base(resolved), info)
	default:
		return nil, fmt.Errorf("not a regular file or directory: %s", input)
	}
	defer root.Close()
	if err != nil {
		return nil, err
	}

	return c.write(ctx, root, sources, w)
}

// source is a file selected for packing.
type source struct {
	name   string // archive path
	fsPath string // path relative to the root
	info   fs.FileInfo
}

type creator struct {
	cfg createConfig
}

// log returns the logger, falling back to a discard logger if nil.
func (c *creator) log() *slog.Logger {
	if c.cfg.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.cfg.logger
}

// reportProgress sends a progress event if a callback is configured.
func (c *creator) reportProgress(stage ProgressStage, path string, bytesDone, bytesTotal uint64, filesDone, filesTotal int) {
	if c.cfg.progress == nil {
		return
	}
	c.cfg.progress(ProgressEvent{
		Stage:      stage,
		Path:       path,
		BytesDone:  bytesDone,
		BytesTotal: bytesTotal,
		FilesDone:  filesDone,
		FilesTotal: filesTotal,
	})
}

func (c *creator) maxFiles() int {
	if c.cfg.maxFiles == 0 {
		return DefaultMaxFiles
	}
	return c.cfg.maxFiles
}

// enumerate walks root and returns its regular files sorted by path.
func (c *creator) enumerate(ctx context.Context, root *os.Root) ([]source, error) {
	maxFiles := c.maxFiles()
	excluded := c.excludedFiles()
	var sources []source
	err := fs.WalkDir(root.FS(), ".", func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fsPath := filepath.FromSlash(path)
		info, ok, err := write.ResolveEntryInfo(root, fsPath, d)
		if err != nil {
			return err
		}
		if !ok {
			c.log().Debug("skipped non-regular file", "path", path)
			return nil
		}
		if slices.ContainsFunc(excluded, func(ex fs.FileInfo) bool { return os.SameFile(ex, info) }) {
			c.log().Debug("skipped excluded file", "path", path)
			return nil
		}
		if err := index.ValidateEntryPath(path); err != nil {
			return err
		}
		if maxFiles > 0 && len(sources) >= maxFiles {
			return ErrTooManyFiles
		}
		sources = append(sources, source{name: path, fsPath: fsPath, info: info})
		c.reportProgress(StageEnumerating, path, 0, 0, len(sources), 0)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// WalkDir visits "a/b" before "a.txt"; the index needs byte order.
	slices.SortFunc(sources, func(a, b source) int {
		return cmp.Compare(a.name, b.name)
	})
	return sources, nil
}

// excludedFiles stats the CreateWithExclude paths that exist.
func (c *creator) excludedFiles() []fs.FileInfo {
	var infos []fs.FileInfo
	for _, p := range c.cfg.exclude {
		if info, err := os.Stat(p); err == nil {
			infos = append(infos, info)
		}
	}
	return infos
}

// single returns the one source for a file input.
func (c *creator) single(base, fsPath string, info fs.FileInfo) ([]source, error) {
	name := c.cfg.entryName
	if name == "" {
		name = base
	}
	if err := index.ValidateEntryPath(name); err != nil {
		return nil, err
	}
	return []source{{name: name, fsPath: fsPath, info: info}}, nil
}

// write streams header, data, index, manifest and trailer to w.
func (c *creator) write(ctx context.Context, root *os.Root, sources []source, w io.Writer) (*Result, error) {
	out := &file.CountingWriter{W: w}
	if _, err := out.Write(encodeHeader()); err != nil {
		return nil, err
	}

	var enc *zstd.Encoder
	if c.cfg.compression != CompressionNone {
		var err error
		enc, err = zstd.NewWriter(io.Discard, zstd.WithEncoderConcurrency(1), zstd.WithLowerEncoderMem(true))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		defer enc.Close()
	}
	buf := make([]byte, 32*1024)

	var bytesTotal uint64
	for _, s := range sources {
		bytesTotal += uint64(max(s.info.Size(), 0))
	}

	hasher := sha256.New()
	data := io.MultiWriter(out, hasher)
	entries := make([]Entry, 0, len(sources))
	var dataSize, bytesDone uint64
	for _, s := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry, err := c.writeEntry(ctx, root, data, enc, buf, s)
		if err != nil {
			if errors.Is(err, write.ErrSymlink) {
				c.log().Debug("skipped symlink", "path", s.name)
				continue
			}
			return nil, err
		}
		if entry.DataSize > ^uint64(0)-dataSize {
			return nil, ErrSizeOverflow
		}
		entry.DataOffset = dataSize
		dataSize += entry.DataSize
		bytesDone += entry.OriginalSize
		entries = append(entries, entry)
		c.reportProgress(StageCompressing, s.name, bytesDone, bytesTotal, len(entries), len(sources))
	}
	c.log().Debug("archive data written", "file_count", len(entries), "data_size", dataSize)

	m, err := buildManifest(c.cfg.contentType, entries)
	if err != nil {
		return nil, err
	}
	manifestData, err := m.Canonical()
	if err != nil {
		return nil, err
	}

	indexData := index.Encode(&index.Index{
		Version:     index.Version,
		ContentType: c.cfg.contentType,
		DataSize:    dataSize,
		DataHash:    hasher.Sum(nil),
		Entries:     entries,
	})

	var t trailer
	t.Index = section{Offset: out.N, Length: uint64(len(indexData))}
	t.Manifest = section{Offset: t.Index.end(), Length: uint64(len(manifestData))}
	t.Signature = section{Offset: t.Manifest.end()}
	for _, b := range [][]byte{indexData, manifestData, t.encode()} {
		if _, err := out.Write(b); err != nil {
			return nil, err
		}
	}

	c.log().Info("archive created", "file_count", len(entries), "size", out.N)
	return &Result{
		Entries:        entries,
		Manifest:       m,
		ManifestDigest: digest.FromBytes(manifestData),
		Size:           out.N,
	}, nil
}

// writeEntry writes a single file's content to data and returns its metadata.
func (c *creator) writeEntry(ctx context.Context, root *os.Root, data io.Writer, enc *zstd.Encoder, buf []byte, s source) (Entry, error) {
	strict := c.cfg.changeDetection == ChangeDetectionStrict

	f, err := write.OpenNoFollow(root, s.fsPath)
	if err != nil {
		return Entry{}, err
	}
	defer f.Close()

	finfo, err := f.Stat()
	if err != nil {
		return Entry{}, err
	}
	if !finfo.Mode().IsRegular() {
		return Entry{}, fmt.Errorf("not a regular file: %s", s.name)
	}
	if strict && !os.SameFile(s.info, finfo) {
		return Entry{}, fmt.Errorf("file replaced while packing: %s", s.name)
	}

	compression := c.cfg.compression
	if compression != CompressionNone && write.ShouldSkip(s.name, finfo, c.cfg.skipCompression) {
		compression = CompressionNone
	}

	res, err := write.Entry(ctx, f, data, enc, buf, compression, finfo.Size())
	if err != nil {
		return Entry{}, fmt.Errorf("write %s: %w", s.name, err)
	}
	if err := write.CheckUnchanged(f, s.name, finfo, strict); err != nil {
		return Entry{}, err
	}

	return Entry{
		Path:         s.name,
		DataSize:     res.DataSize,
		OriginalSize: res.OriginalSize,
		Hash:         res.Hash,
		Mode:         finfo.Mode().Perm(),
		ModTime:      finfo.ModTime(),
		Compression:  compression,
	}, nil
}

// buildManifest derives the manifest from written entries.
func buildManifest(contentType string, entries []Entry) (*manifest.Manifest, error) {
	me := make([]manifest.Entry, len(entries))
	for i := range entries {
		me[i] = manifest.EntryFromSHA256(entries[i].Path, entries[i].Hash)
	}
	return manifest.Build(contentType, me)
}
