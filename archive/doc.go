// Package archive reads and writes templatex containers.
//
// A container is a single file holding every packed entry plus the
// metadata needed to verify them:
//
//	header     "TPLX", uint16 version, uint16 flags
//	data       entry payloads in path order, each raw or zstd-compressed
//	index      FlatBuffers index of entries (see schema/index.fbs)
//	manifest   RFC 8785 canonical JSON of (path, digest) pairs
//	signature  JSON signature block, empty when unsigned
//	trailer    section offsets and lengths, "TPLXEND\x00"
//
// The trailer sits at a fixed distance from the end of the file, so a
// reader locates every section with one read. Signing only rewrites the
// signature section and the trailer; the data, index and manifest bytes
// are left untouched.
package archive

//go:generate flatc --go --go-namespace fb -o ../internal ../schema/index.fbs
