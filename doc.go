// Package templatex packs a directory or file into a single portable
// archive, optionally signs it, and extracts it again while detecting any
// change made after signing.
//
// # Packing
//
// Pack walks the input and writes a .mstx archive:
//
//	out, err := templatex.Pack(ctx, "./catalog", "", "templates/v1")
//
// An empty output path derives "<input>_<yyyyMMddHHmmss>.mstx" under the
// working directory set by [WithWorkDir] (default: $TMPDIR/templatex).
//
// # Signing
//
// PackAndSign additionally signs the archive manifest with a certificate
// loaded from a PKCS#12 file or found by thumbprint in the certificate
// stores:
//
//	out, err := templatex.PackAndSign(ctx, "./catalog", "catalog.mstx",
//	    certstore.ThumbprintRef{Thumbprint: "3F2A..."}, "templates/v1")
//
// The signature covers the manifest digest: the content type and every
// (path, SHA256) pair.
//
// # Extracting
//
// Extract restores the archive under a destination directory. With
// validate set, the signature is checked against digests recomputed from
// the stored entry bytes first, and nothing is written unless it verifies:
//
//	err := templatex.Extract(ctx, "catalog.mstx", "./out", true)
//	if errors.Is(err, templatex.ErrInvalidSignature) {
//	    // tampered or untrusted
//	}
//
// Extraction is staged, so a failure part way through leaves the
// destination untouched.
//
// # Reading in place
//
// After Verify succeeds, templates can be parsed straight from the archive
// through the archive package's fs.FS view:
//
//	a, err := archive.Open("catalog.mstx")
//	...
//	tmpl, err := template.ParseFS(a.FS(), "web/*.tmpl")
package templatex
