// Package signature signs and verifies manifest digests.
//
// A Block binds one manifest digest to the certificate that signed it. The
// signature is computed over the raw 32-byte SHA256 manifest digest:
//
//   - rsa-pkcs1v15-sha256: RSASSA-PKCS1-v1_5 with the digest as a SHA256 hash
//   - ecdsa-sha256: ASN.1 DER ECDSA signature over the digest
//   - ed25519: pure Ed25519 over the digest bytes
package signature

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/templatex/certstore"
)

// Signature algorithm identifiers.
const (
	AlgRSAPKCS1v15SHA256 = "rsa-pkcs1v15-sha256"
	AlgECDSASHA256       = "ecdsa-sha256"
	AlgEd25519           = "ed25519"
)

// Sentinel errors.
var (
	// ErrSigningFailed is returned when a certificate cannot produce a signature.
	ErrSigningFailed = errors.New("templatex: signing failed")

	// ErrInvalid is returned when a signature does not verify.
	ErrInvalid = errors.New("templatex: invalid signature")

	// ErrDigestMismatch is returned when the content digest differs from
	// the digest recorded in the block.
	ErrDigestMismatch = errors.New("templatex: manifest digest mismatch")

	// ErrMalformed is returned when a block cannot be decoded.
	ErrMalformed = errors.New("templatex: malformed signature block")
)

// Block is the signature record stored in a signed archive.
type Block struct {
	Algorithm    string        `json:"alg"`
	Thumbprint   string        `json:"thumbprint"`
	Signature    string        `json:"sig"`
	SignedDigest digest.Digest `json:"signed_digest"`
	SignedAt     time.Time     `json:"signed_at"`
}

// Sign signs d with cert's private key.
//
// now is compared against the certificate validity window; a certificate
// that is not yet valid or has expired cannot sign.
func Sign(cert *certstore.Certificate, d digest.Digest, now time.Time) (*Block, error) {
	if cert == nil || cert.Leaf == nil {
		return nil, fmt.Errorf("%w: no certificate", ErrSigningFailed)
	}
	if !cert.HasPrivateKey() {
		return nil, fmt.Errorf("%w: certificate %s has no private key", ErrSigningFailed, cert.Thumbprint())
	}
	if !cert.KeyMatches() {
		return nil, fmt.Errorf("%w: private key does not match certificate %s", ErrSigningFailed, cert.Thumbprint())
	}
	if !cert.ValidAt(now) {
		return nil, fmt.Errorf("%w: certificate %s is outside its validity window (%s to %s)",
			ErrSigningFailed, cert.Thumbprint(), cert.Leaf.NotBefore.Format(time.RFC3339), cert.Leaf.NotAfter.Format(time.RFC3339))
	}
	sum, err := digestBytes(d)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	var (
		alg string
		sig []byte
	)
	switch cert.PrivateKey.(type) {
	case *rsa.PrivateKey:
		alg = AlgRSAPKCS1v15SHA256
		sig, err = cert.PrivateKey.Sign(rand.Reader, sum, crypto.SHA256)
	case *ecdsa.PrivateKey:
		alg = AlgECDSASHA256
		sig, err = cert.PrivateKey.Sign(rand.Reader, sum, crypto.SHA256)
	case ed25519.PrivateKey, *ed25519.PrivateKey:
		alg = AlgEd25519
		sig, err = cert.PrivateKey.Sign(rand.Reader, sum, crypto.Hash(0))
	default:
		return nil, fmt.Errorf("%w: unsupported key type %T", ErrSigningFailed, cert.PrivateKey)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	return &Block{
		Algorithm:    alg,
		Thumbprint:   cert.Thumbprint(),
		Signature:    base64.StdEncoding.EncodeToString(sig),
		SignedDigest: d,
		SignedAt:     now.UTC(),
	}, nil
}

// Verify checks that b is a valid signature by pub over d.
//
// It returns ErrDigestMismatch when d differs from the signed digest and
// ErrInvalid when the signature itself does not verify.
func Verify(b *Block, d digest.Digest, pub crypto.PublicKey) error {
	if b.SignedDigest != d {
		return fmt.Errorf("%w: signed %s, content %s", ErrDigestMismatch, b.SignedDigest, d)
	}
	sum, err := digestBytes(d)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	sig, err := base64.StdEncoding.DecodeString(b.Signature)
	if err != nil {
		return fmt.Errorf("%w: decode signature: %v", ErrInvalid, err)
	}

	switch key := pub.(type) {
	case *rsa.PublicKey:
		if b.Algorithm != AlgRSAPKCS1v15SHA256 {
			return algorithmMismatch(b.Algorithm, key)
		}
		if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, sum, sig); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	case *ecdsa.PublicKey:
		if b.Algorithm != AlgECDSASHA256 {
			return algorithmMismatch(b.Algorithm, key)
		}
		if !ecdsa.VerifyASN1(key, sum, sig) {
			return ErrInvalid
		}
	case ed25519.PublicKey:
		if b.Algorithm != AlgEd25519 {
			return algorithmMismatch(b.Algorithm, key)
		}
		if !ed25519.Verify(key, sum, sig) {
			return ErrInvalid
		}
	default:
		return fmt.Errorf("%w: unsupported public key type %T", ErrInvalid, pub)
	}
	return nil
}

func algorithmMismatch(alg string, key crypto.PublicKey) error {
	return fmt.Errorf("%w: algorithm %q does not match %T", ErrInvalid, alg, key)
}

// digestBytes returns the raw sum of a SHA256 digest.
func digestBytes(d digest.Digest) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if d.Algorithm() != digest.SHA256 {
		return nil, fmt.Errorf("unsupported digest algorithm %s", d.Algorithm())
	}
	return hex.DecodeString(d.Encoded())
}

// Marshal encodes the block as JSON.
func (b *Block) Marshal() ([]byte, error) {
	return json.Marshal(b)
}

// Parse decodes a block and checks its required fields.
func Parse(data []byte) (*Block, error) {
	var b Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch {
	case b.Algorithm == "":
		return nil, fmt.Errorf("%w: missing alg", ErrMalformed)
	case b.Thumbprint == "":
		return nil, fmt.Errorf("%w: missing thumbprint", ErrMalformed)
	case b.Signature == "":
		return nil, fmt.Errorf("%w: missing sig", ErrMalformed)
	}
	if err := b.SignedDigest.Validate(); err != nil {
		return nil, fmt.Errorf("%w: signed_digest: %v", ErrMalformed, err)
	}
	return &b, nil
}
