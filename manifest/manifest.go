// Package manifest builds the canonical content list that archive
// signatures bind to.
//
// A manifest is the archive content type plus one (path, digest) pair per
// entry, sorted by path and serialized as RFC 8785 canonical JSON. Two
// manifests describing the same bytes always serialize identically, so
// their digests can be compared directly.
package manifest

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/gowebpki/jcs"
	"github.com/opencontainers/go-digest"
)

// ErrInvalid is returned when a manifest is malformed.
var ErrInvalid = errors.New("templatex: invalid manifest")

// Entry binds an archive path to the digest of its uncompressed content.
type Entry struct {
	Path   string        `json:"path"`
	Digest digest.Digest `json:"digest"`
}

// Manifest is the signed description of an archive's content.
type Manifest struct {
	ContentType string  `json:"content_type"`
	Entries     []Entry `json:"entries"`
}

// EntryFromSHA256 creates an Entry from a raw SHA256 sum.
func EntryFromSHA256(path string, sum []byte) Entry {
	return Entry{
		Path:   path,
		Digest: digest.NewDigestFromEncoded(digest.SHA256, hex.EncodeToString(sum)),
	}
}

// Build creates a manifest from entries in any order.
// The entries are copied and sorted by path. Duplicate paths and malformed
// digests are rejected.
func Build(contentType string, entries []Entry) (*Manifest, error) {
	sorted := slices.Clone(entries)
	if sorted == nil {
		sorted = []Entry{}
	}
	slices.SortFunc(sorted, func(a, b Entry) int {
		return strings.Compare(a.Path, b.Path)
	})
	m := &Manifest{ContentType: contentType, Entries: sorted}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Parse decodes a manifest and checks that it is in canonical order.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if m.Entries == nil {
		m.Entries = []Entry{}
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	for i, e := range m.Entries {
		if e.Path == "" {
			return fmt.Errorf("%w: empty path", ErrInvalid)
		}
		if err := e.Digest.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, e.Path, err)
		}
		if i > 0 && m.Entries[i-1].Path >= e.Path {
			if m.Entries[i-1].Path == e.Path {
				return fmt.Errorf("%w: duplicate path %q", ErrInvalid, e.Path)
			}
			return fmt.Errorf("%w: entries not sorted at %q", ErrInvalid, e.Path)
		}
	}
	return nil
}

// Canonical returns the RFC 8785 serialization of the manifest.
func (m *Manifest) Canonical() ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize manifest: %w", err)
	}
	return canonical, nil
}

// Digest returns the SHA256 digest of the canonical serialization.
func (m *Manifest) Digest() (digest.Digest, error) {
	canonical, err := m.Canonical()
	if err != nil {
		return "", err
	}
	return digest.FromBytes(canonical), nil
}

// Lookup returns the entry for path, if present.
func (m *Manifest) Lookup(path string) (Entry, bool) {
	i, found := slices.BinarySearchFunc(m.Entries, path, func(e Entry, p string) int {
		return strings.Compare(e.Path, p)
	})
	if !found {
		return Entry{}, false
	}
	return m.Entries[i], true
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	return len(m.Entries)
}
