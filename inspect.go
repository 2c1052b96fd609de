package templatex

import (
	"context"
	"errors"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/templatex/archive"
	"github.com/meigma/templatex/signature"
)

// Info describes an archive without verifying it.
type Info struct {
	Path           string
	ContentType    string
	Entries        []archive.Entry
	ManifestDigest digest.Digest
	// Signature is nil for unsigned archives.
	Signature *signature.Block
	DataSize  uint64
	// DataIntact reports whether the data section still matches the
	// checksum recorded when it was packed.
	DataIntact bool
}

// FileCount returns the number of entries.
func (i *Info) FileCount() int {
	return len(i.Entries)
}

// TotalSize returns the sum of uncompressed entry sizes.
func (i *Info) TotalSize() uint64 {
	var n uint64
	for _, e := range i.Entries {
		n += e.OriginalSize
	}
	return n
}

// Inspect reads an archive's metadata: its content type, entries, manifest
// digest and signature block. The data section is checked against its
// packed checksum, but entries are not decoded and the signature is not
// checked.
func Inspect(archivePath string, opts ...Option) (Info, error) {
	cfg := newConfig(opts)
	path, err := absPath(archivePath)
	if err != nil {
		return Info{}, err
	}
	a, err := archive.Open(path, cfg.openOptions()...)
	if err != nil {
		return Info{}, err
	}
	defer a.Close()

	block, err := a.Signature()
	if err != nil {
		return Info{}, err
	}
	intact := true
	if err := a.VerifyData(context.Background()); err != nil {
		if !errors.Is(err, archive.ErrHashMismatch) {
			return Info{}, err
		}
		cfg.log().Warn("data section does not match its checksum", "path", path)
		intact = false
	}
	return Info{
		Path:           path,
		ContentType:    a.ContentType(),
		Entries:        append([]archive.Entry(nil), a.Entries()...),
		ManifestDigest: a.ManifestDigest(),
		Signature:      block,
		DataSize:       a.DataSize(),
		DataIntact:     intact,
	}, nil
}
