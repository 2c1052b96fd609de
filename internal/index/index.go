// Package index encodes and decodes the FlatBuffers archive index.
package index

import (
	"crypto/sha256"
	"fmt"
	"io/fs"
	"iter"
	"sort"
	"strings"
	"time"

	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/meigma/templatex/internal/blobtype"
	"github.com/meigma/templatex/internal/fb"
)

// Version is the index format version written by Encode.
const Version = 1

// Index is the decoded archive index.
//
// Entries are sorted by path, enabling binary search lookups and prefix scans.
type Index struct {
	Version     uint32
	ContentType string
	DataSize    uint64
	DataHash    []byte
	Entries     []blobtype.Entry
}

// Encode serializes idx to FlatBuffers format.
//
// Entries must already be sorted by path.
func Encode(idx *Index) []byte {
	builder := flatbuffers.NewBuilder(1024)

	// Build entries in reverse order (FlatBuffers requirement)
	entryOffsets := make([]flatbuffers.UOffsetT, len(idx.Entries))
	for i := len(idx.Entries) - 1; i >= 0; i-- {
		e := idx.Entries[i]

		pathOffset := builder.CreateString(e.Path)

		fb.EntryStartHashVector(builder, len(e.Hash))
		for j := len(e.Hash) - 1; j >= 0; j-- {
			builder.PrependByte(e.Hash[j])
		}
		hashOffset := builder.EndVector(len(e.Hash))

		fb.EntryStart(builder)
		fb.EntryAddPath(builder, pathOffset)
		fb.EntryAddDataOffset(builder, e.DataOffset)
		fb.EntryAddDataSize(builder, e.DataSize)
		fb.EntryAddOriginalSize(builder, e.OriginalSize)
		fb.EntryAddHash(builder, hashOffset)
		fb.EntryAddMode(builder, uint32(e.Mode))
		fb.EntryAddMtimeNs(builder, e.ModTime.UnixNano())
		fb.EntryAddCompression(builder, fb.Compression(e.Compression)) //nolint:gosec // Compression is bounded 0-1
		entryOffsets[i] = fb.EntryEnd(builder)
	}

	fb.IndexStartEntriesVector(builder, len(idx.Entries))
	for i := len(entryOffsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(entryOffsets[i])
	}
	entriesOffset := builder.EndVector(len(idx.Entries))

	contentTypeOffset := builder.CreateString(idx.ContentType)

	var dataHashOffset flatbuffers.UOffsetT
	if len(idx.DataHash) > 0 {
		fb.IndexStartDataHashVector(builder, len(idx.DataHash))
		for i := len(idx.DataHash) - 1; i >= 0; i-- {
			builder.PrependByte(idx.DataHash[i])
		}
		dataHashOffset = builder.EndVector(len(idx.DataHash))
	}

	fb.IndexStart(builder)
	fb.IndexAddVersion(builder, Version)
	fb.IndexAddHashAlgorithm(builder, fb.HashAlgorithmSHA256)
	fb.IndexAddContentType(builder, contentTypeOffset)
	fb.IndexAddEntries(builder, entriesOffset)
	fb.IndexAddDataSize(builder, idx.DataSize)
	if dataHashOffset != 0 {
		fb.IndexAddDataHash(builder, dataHashOffset)
	}
	indexOffset := fb.IndexEnd(builder)

	fb.FinishIndexBuffer(builder, indexOffset)
	return builder.FinishedBytes()
}

// Decode parses a FlatBuffers-encoded index and copies every entry out of
// the buffer.
//
// The index is validated as it is decoded: entry paths must be valid,
// unique, and sorted, and every entry must carry a SHA256 hash. Malformed
// buffers are reported as blobtype.ErrInvalidArchive rather than panicking.
func Decode(data []byte) (idx *Index, err error) {
	if len(data) < flatbuffers.SizeUOffsetT {
		return nil, fmt.Errorf("%w: empty index", blobtype.ErrInvalidArchive)
	}
	defer func() {
		if r := recover(); r != nil {
			idx = nil
			err = fmt.Errorf("%w: corrupt index: %v", blobtype.ErrInvalidArchive, r)
		}
	}()

	root := fb.GetRootAsIndex(data, 0)
	if v := root.Version(); v != Version {
		return nil, fmt.Errorf("%w: unsupported index version %d", blobtype.ErrInvalidArchive, v)
	}
	if alg := root.HashAlgorithm(); alg != fb.HashAlgorithmSHA256 {
		return nil, fmt.Errorf("%w: unsupported hash algorithm %s", blobtype.ErrInvalidArchive, alg)
	}

	n := root.EntriesLength()
	idx = &Index{
		Version:     root.Version(),
		ContentType: string(root.ContentType()),
		DataSize:    root.DataSize(),
		DataHash:    append([]byte(nil), root.DataHashBytes()...),
		Entries:     make([]blobtype.Entry, 0, n),
	}

	var fbEntry fb.Entry
	for i := range n {
		if !root.Entries(&fbEntry, i) {
			return nil, fmt.Errorf("%w: missing entry %d", blobtype.ErrInvalidArchive, i)
		}
		entry, err := entryFromFlatBuffers(&fbEntry)
		if err != nil {
			return nil, err
		}
		if i > 0 && idx.Entries[i-1].Path >= entry.Path {
			return nil, fmt.Errorf("%w: entries not sorted or duplicated at %q", blobtype.ErrInvalidArchive, entry.Path)
		}
		idx.Entries = append(idx.Entries, entry)
	}
	return idx, nil
}

func entryFromFlatBuffers(e *fb.Entry) (blobtype.Entry, error) {
	path := string(e.Path())
	if err := ValidateEntryPath(path); err != nil {
		return blobtype.Entry{}, err
	}

	// Copy hash bytes since FlatBuffers data is shared.
	hash := append([]byte(nil), e.HashBytes()...)
	if len(hash) != sha256.Size {
		return blobtype.Entry{}, fmt.Errorf("%w: invalid hash length %d for %q", blobtype.ErrInvalidArchive, len(hash), path)
	}

	compression := blobtype.Compression(e.Compression()) //nolint:gosec // range checked below
	if compression > blobtype.CompressionZstd {
		return blobtype.Entry{}, fmt.Errorf("%w: unknown compression %d for %q", blobtype.ErrInvalidArchive, e.Compression(), path)
	}

	return blobtype.Entry{
		Path:         path,
		DataOffset:   e.DataOffset(),
		DataSize:     e.DataSize(),
		OriginalSize: e.OriginalSize(),
		Hash:         hash,
		Mode:         fs.FileMode(e.Mode()).Perm(),
		ModTime:      time.Unix(0, e.MtimeNs()),
		Compression:  compression,
	}, nil
}

// ValidateEntryPath rejects paths that are not slash-separated, relative,
// and free of "." or ".." elements. Backslashes are rejected so a path can
// never be reinterpreted as a traversal on Windows.
func ValidateEntryPath(path string) error {
	if path == "." || !fs.ValidPath(path) || strings.ContainsRune(path, '\\') {
		return fmt.Errorf("%w: invalid entry path %q", blobtype.ErrInvalidArchive, path)
	}
	return nil
}

// Len returns the number of entries in the index.
func (idx *Index) Len() int {
	return len(idx.Entries)
}

// Lookup returns the entry for the given path.
// Returns false if the path does not exist in the index.
func (idx *Index) Lookup(path string) (blobtype.Entry, bool) {
	i := sort.Search(len(idx.Entries), func(i int) bool {
		return idx.Entries[i].Path >= path
	})
	if i < len(idx.Entries) && idx.Entries[i].Path == path {
		return idx.Entries[i], true
	}
	return blobtype.Entry{}, false
}

// EntriesWithPrefix returns an iterator over entries whose paths begin with prefix.
func (idx *Index) EntriesWithPrefix(prefix string) iter.Seq[blobtype.Entry] {
	return func(yield func(blobtype.Entry) bool) {
		start := sort.Search(len(idx.Entries), func(i int) bool {
			return idx.Entries[i].Path >= prefix
		})
		for _, e := range idx.Entries[start:] {
			if !strings.HasPrefix(e.Path, prefix) {
				return
			}
			if !yield(e) {
				return
			}
		}
	}
}
