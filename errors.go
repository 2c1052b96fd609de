package templatex

import (
	"errors"

	"github.com/meigma/templatex/archive"
	"github.com/meigma/templatex/certstore"
	"github.com/meigma/templatex/signature"
)

// ErrSignCertNotFound is returned by PackAndSign when no store holds a
// certificate with the requested thumbprint.
var ErrSignCertNotFound = errors.New("templatex: signing certificate not found")

// Errors re-exported from subpackages.
var (
	// ErrNotFound is returned when an input path or archive does not exist.
	ErrNotFound = archive.ErrNotFound

	// ErrInvalidCredential is returned when a credential file is missing or
	// its passphrase is wrong.
	ErrInvalidCredential = certstore.ErrInvalidCredential

	// ErrSigningFailed is returned when the resolved certificate cannot sign.
	ErrSigningFailed = signature.ErrSigningFailed

	// ErrInvalidSignature is returned by Extract when validation fails.
	ErrInvalidSignature = signature.ErrInvalid

	// ErrInvalidArchive is returned when an archive is malformed.
	ErrInvalidArchive = archive.ErrInvalidArchive

	// ErrHashMismatch is returned when entry content does not match the index.
	ErrHashMismatch = archive.ErrHashMismatch

	// ErrDecompression is returned when an entry cannot be decompressed.
	ErrDecompression = archive.ErrDecompression

	// ErrSizeOverflow is returned when a size exceeds a configured limit.
	ErrSizeOverflow = archive.ErrSizeOverflow

	// ErrTooManyFiles is returned when the input exceeds the file limit.
	ErrTooManyFiles = archive.ErrTooManyFiles
)
