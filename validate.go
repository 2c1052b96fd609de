package templatex

import (
	"context"
	"errors"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/templatex/archive"
	"github.com/meigma/templatex/certstore"
	"github.com/meigma/templatex/signature"
)

// VerifyResult is the detailed outcome of signature validation.
type VerifyResult struct {
	// Valid is true only when the signature verifies against digests
	// recomputed from the archive's current entry bytes.
	Valid bool
	// Signed reports whether the archive carries a signature block.
	Signed bool
	// Reason explains a false verdict.
	Reason string

	Algorithm     string
	Thumbprint    string
	SignedAt      time.Time
	SignedDigest  digest.Digest
	ContentDigest digest.Digest
	// Signer is the certificate used for verification, when found.
	Signer *certstore.Certificate
}

// Verdict reasons.
const (
	ReasonUnsigned          = "archive is not signed"
	ReasonMalformedBlock    = "signature block is malformed"
	ReasonUnreadableContent = "entry content cannot be read"
	ReasonDigestMismatch    = "content does not match signed manifest"
	ReasonUnknownSigner     = "signing certificate not found"
	ReasonBadSignature      = "signature does not verify"
)

// ValidateSignatures reports whether the archive at archivePath is signed
// and its signature verifies against the archive's current content.
//
// Every entry is decompressed and rehashed, the manifest is rebuilt from
// those fresh digests, and the signature is checked against the rebuilt
// manifest digest using the public key of the certificate whose thumbprint
// the block names. The certificate is looked up in the configured stores
// and in any WithTrustedCertificates.
//
// ValidateSignatures never fails: unsigned, unreadable and malformed
// archives are simply not valid. Reasons are logged at debug level; use
// Verify to get them directly.
func ValidateSignatures(ctx context.Context, archivePath string, opts ...Option) bool {
	cfg := newConfig(opts)
	res, err := verifyPath(ctx, cfg, archivePath)
	if err != nil {
		cfg.log().Debug("signature validation failed", "path", archivePath, "error", err)
		return false
	}
	if !res.Valid {
		cfg.log().Debug("signature validation failed", "path", archivePath, "reason", res.Reason)
	}
	return res.Valid
}

// Verify is ValidateSignatures with details.
//
// It returns an error only when the archive cannot be opened or ctx is
// done; every other failure is reported through VerifyResult.Reason.
func Verify(ctx context.Context, archivePath string, opts ...Option) (VerifyResult, error) {
	return verifyPath(ctx, newConfig(opts), archivePath)
}

func verifyPath(ctx context.Context, cfg *config, archivePath string) (VerifyResult, error) {
	path, err := absPath(archivePath)
	if err != nil {
		return VerifyResult{}, err
	}
	a, err := archive.Open(path, cfg.openOptions()...)
	if err != nil {
		return VerifyResult{}, err
	}
	defer a.Close()
	return verifyArchive(ctx, cfg, a)
}

func verifyArchive(ctx context.Context, cfg *config, a *archive.Archive) (VerifyResult, error) {
	var res VerifyResult
	if !a.Signed() {
		res.Reason = ReasonUnsigned
		return res, nil
	}
	res.Signed = true

	block, err := a.Signature()
	if err != nil {
		res.Reason = ReasonMalformedBlock
		return res, nil
	}
	res.Algorithm = block.Algorithm
	res.Thumbprint = block.Thumbprint
	res.SignedAt = block.SignedAt
	res.SignedDigest = block.SignedDigest

	m, err := a.ContentManifest(ctx, cfg.progress)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		cfg.log().Debug("entry content unreadable", "path", a.Path(), "error", err)
		res.Reason = ReasonUnreadableContent
		return res, nil
	}
	res.ContentDigest, err = m.Digest()
	if err != nil {
		return res, err
	}

	signer, err := cfg.certResolver().Lookup(block.Thumbprint)
	if err != nil {
		cfg.log().Debug("certificate lookup failed", "thumbprint", block.Thumbprint, "error", err)
	}
	if signer == nil {
		res.Reason = ReasonUnknownSigner
		return res, nil
	}
	res.Signer = signer

	switch err := signature.Verify(block, res.ContentDigest, signer.PublicKey()); {
	case err == nil:
		res.Valid = true
	case errors.Is(err, signature.ErrDigestMismatch):
		res.Reason = ReasonDigestMismatch
	default:
		cfg.log().Debug("signature rejected", "thumbprint", block.Thumbprint, "error", err)
		res.Reason = ReasonBadSignature
	}
	return res, nil
}
