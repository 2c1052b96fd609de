package archive

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/meigma/templatex/internal/pathutil"
)

// FS returns a read-only fs.FS over the archive's entries, for consumers
// such as template.ParseFS that read templates in place.
//
// Directories are synthesized from entry paths. Opening a file reads and
// verifies its whole content; a payload that does not match the index
// fails with ErrHashMismatch. The returned FS is valid until the archive
// is closed.
func (a *Archive) FS() fs.FS {
	return &archiveFS{a: a}
}

type archiveFS struct {
	a *Archive
}

var (
	_ fs.ReadDirFS  = (*archiveFS)(nil)
	_ fs.ReadFileFS = (*archiveFS)(nil)
	_ fs.StatFS     = (*archiveFS)(nil)
)

// Open implements fs.FS.
func (f *archiveFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	if e, ok := f.a.idx.Lookup(name); ok {
		data, err := f.a.reader.ReadAll(context.Background(), &e)
		if err != nil {
			return nil, &fs.PathError{Op: "open", Path: name, Err: err}
		}
		return &openFile{Reader: bytes.NewReader(data), info: fileInfoOf(&e)}, nil
	}
	if entries, ok := f.dirEntries(name); ok {
		return &openDir{name: name, entries: entries}, nil
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// Stat implements fs.StatFS without reading entry content.
func (f *archiveFS) Stat(name string) (fs.FileInfo, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrInvalid}
	}
	if e, ok := f.a.idx.Lookup(name); ok {
		return fileInfoOf(&e), nil
	}
	if _, ok := f.dirEntries(name); ok {
		return dirInfo(name), nil
	}
	return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
}

// ReadFile implements fs.ReadFileFS.
func (f *archiveFS) ReadFile(name string) ([]byte, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: fs.ErrInvalid}
	}
	e, ok := f.a.idx.Lookup(name)
	if !ok {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: fs.ErrNotExist}
	}
	data, err := f.a.reader.ReadAll(context.Background(), &e)
	if err != nil {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: err}
	}
	return data, nil
}

// ReadDir implements fs.ReadDirFS. Entries are sorted by name.
func (f *archiveFS) ReadDir(name string) ([]fs.DirEntry, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	if _, ok := f.a.idx.Lookup(name); ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	entries, ok := f.dirEntries(name)
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}
	return entries, nil
}

// dirEntries lists the immediate children of the directory name. ok is
// false when no entry lives below name; the root always exists.
func (f *archiveFS) dirEntries(name string) ([]fs.DirEntry, bool) {
	prefix := pathutil.DirPrefix(name)
	var (
		entries []fs.DirEntry
		seen    = make(map[string]bool)
	)
	for e := range f.a.idx.EntriesWithPrefix(prefix) {
		child, isDir := pathutil.Child(e.Path, prefix)
		if seen[child] {
			continue
		}
		seen[child] = true
		if isDir {
			entries = append(entries, fs.FileInfoToDirEntry(dirInfo(child)))
			continue
		}
		entries = append(entries, fs.FileInfoToDirEntry(fileInfoOf(&e)))
	}
	if len(entries) == 0 && name != "." {
		return nil, false
	}
	slices.SortFunc(entries, func(x, y fs.DirEntry) int {
		return strings.Compare(x.Name(), y.Name())
	})
	return entries, true
}

type fileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
}

func fileInfoOf(e *Entry) *fileInfo {
	mode := e.Mode.Perm()
	if mode == 0 {
		mode = 0o444
	}
	return &fileInfo{
		name:    pathutil.Base(e.Path),
		size:    int64(e.OriginalSize), //nolint:gosec // bounded by the reader's size limits
		mode:    mode,
		modTime: e.ModTime,
	}
}

func dirInfo(name string) *fileInfo {
	return &fileInfo{name: pathutil.Base(name), mode: fs.ModeDir | 0o555}
}

func (i *fileInfo) Name() string       { return i.name }
func (i *fileInfo) Size() int64        { return i.size }
func (i *fileInfo) Mode() fs.FileMode  { return i.mode }
func (i *fileInfo) ModTime() time.Time { return i.modTime }
func (i *fileInfo) IsDir() bool        { return i.mode.IsDir() }
func (i *fileInfo) Sys() any           { return nil }

// openFile is a verified, fully buffered archive entry.
type openFile struct {
	*bytes.Reader
	info *fileInfo
}

func (f *openFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *openFile) Close() error               { return nil }

// openDir implements fs.ReadDirFile for synthesized directories.
type openDir struct {
	name    string
	entries []fs.DirEntry
	offset  int
}

func (d *openDir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: fs.ErrInvalid}
}

func (d *openDir) Stat() (fs.FileInfo, error) { return dirInfo(d.name), nil }
func (d *openDir) Close() error               { return nil }

func (d *openDir) ReadDir(n int) ([]fs.DirEntry, error) {
	rest := d.entries[d.offset:]
	if n <= 0 {
		d.offset = len(d.entries)
		return slices.Clone(rest), nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	n = min(n, len(rest))
	d.offset += n
	return slices.Clone(rest[:n]), nil
}
