package archive

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	headerMagic  = "TPLX"
	trailerMagic = "TPLXEND\x00"

	// FormatVersion is the container version written by this package.
	FormatVersion = 1

	headerSize  = 8
	trailerSize = 6*8 + 8 // six section words, then trailerMagic
)

// section locates a byte range within the container.
type section struct {
	Offset uint64
	Length uint64
}

func (s section) end() uint64 {
	return s.Offset + s.Length
}

// trailer records where the metadata sections live.
type trailer struct {
	Index     section
	Manifest  section
	Signature section
}

func encodeHeader() []byte {
	b := make([]byte, headerSize)
	copy(b, headerMagic)
	binary.LittleEndian.PutUint16(b[4:], FormatVersion)
	binary.LittleEndian.PutUint16(b[6:], 0)
	return b
}

func decodeHeader(b []byte) error {
	if len(b) != headerSize || string(b[:4]) != headerMagic {
		return fmt.Errorf("%w: bad header magic", ErrInvalidArchive)
	}
	if v := binary.LittleEndian.Uint16(b[4:]); v != FormatVersion {
		return fmt.Errorf("%w: unsupported container version %d", ErrInvalidArchive, v)
	}
	if flags := binary.LittleEndian.Uint16(b[6:]); flags != 0 {
		return fmt.Errorf("%w: unknown header flags %#x", ErrInvalidArchive, flags)
	}
	return nil
}

func (t *trailer) encode() []byte {
	b := make([]byte, trailerSize)
	for i, v := range []uint64{
		t.Index.Offset, t.Index.Length,
		t.Manifest.Offset, t.Manifest.Length,
		t.Signature.Offset, t.Signature.Length,
	} {
		binary.LittleEndian.PutUint64(b[i*8:], v)
	}
	copy(b[6*8:], trailerMagic)
	return b
}

func decodeTrailer(b []byte) (trailer, error) {
	if len(b) != trailerSize || !bytes.Equal(b[6*8:], []byte(trailerMagic)) {
		return trailer{}, fmt.Errorf("%w: bad trailer magic", ErrInvalidArchive)
	}
	u := func(i int) uint64 { return binary.LittleEndian.Uint64(b[i*8:]) }
	return trailer{
		Index:     section{u(0), u(1)},
		Manifest:  section{u(2), u(3)},
		Signature: section{u(4), u(5)},
	}, nil
}

// validate checks that the sections tile the file between the data section
// and the trailer with no gaps, overlaps, or trailing bytes.
func (t *trailer) validate(fileSize int64) error {
	if fileSize < int64(headerSize+trailerSize) {
		return fmt.Errorf("%w: file too small", ErrInvalidArchive)
	}
	for _, s := range []section{t.Index, t.Manifest, t.Signature} {
		if s.Offset > math.MaxInt64 || s.Length > math.MaxInt64-s.Offset {
			return fmt.Errorf("%w: section out of range", ErrInvalidArchive)
		}
	}
	metaEnd := uint64(fileSize) - trailerSize //nolint:gosec // fileSize checked above
	switch {
	case t.Index.Offset < headerSize:
		return fmt.Errorf("%w: index overlaps header", ErrInvalidArchive)
	case t.Index.Length == 0:
		return fmt.Errorf("%w: empty index", ErrInvalidArchive)
	case t.Index.end() != t.Manifest.Offset:
		return fmt.Errorf("%w: manifest does not follow index", ErrInvalidArchive)
	case t.Manifest.end() != t.Signature.Offset:
		return fmt.Errorf("%w: signature does not follow manifest", ErrInvalidArchive)
	case t.Signature.end() != metaEnd:
		return fmt.Errorf("%w: sections do not end at trailer", ErrInvalidArchive)
	}
	return nil
}

// dataSize returns the length of the data section.
func (t *trailer) dataSize() uint64 {
	return t.Index.Offset - headerSize
}
