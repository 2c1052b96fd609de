// Package certstore resolves signing and verification certificates.
//
// Certificates come from one of two places: a password-protected PKCS#12
// credential file, or a lookup by thumbprint over an ordered list of
// certificate stores. The default stores are a per-user store followed by
// a machine-wide store; the first store holding a matching certificate
// wins.
package certstore

import (
	"crypto"
	"crypto/sha1" //nolint:gosec // thumbprints are SHA-1 by convention, not used for integrity
	"crypto/x509"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// Sentinel errors.
var (
	// ErrInvalidCredential is returned when a credential file is missing,
	// malformed, or protected by a different passphrase.
	ErrInvalidCredential = errors.New("templatex: invalid credential")

	// ErrNoReference is returned when a nil Ref is resolved.
	ErrNoReference = errors.New("templatex: no certificate reference")

	errKeyMismatch = errors.New("private key does not match certificate")
)

// Certificate is a resolved X.509 certificate with an optional private key.
type Certificate struct {
	// Leaf is the certificate itself.
	Leaf *x509.Certificate
	// Chain holds any intermediate certificates shipped alongside Leaf.
	Chain []*x509.Certificate
	// PrivateKey is nil for verification-only certificates.
	PrivateKey crypto.Signer
	// Source describes where the certificate was loaded from.
	Source string
}

// Thumbprint returns the upper-case hex SHA-1 of the certificate DER.
func (c *Certificate) Thumbprint() string {
	return Thumbprint(c.Leaf)
}

// HasPrivateKey reports whether the certificate can sign.
func (c *Certificate) HasPrivateKey() bool {
	return c != nil && c.PrivateKey != nil
}

// KeyMatches reports whether PrivateKey is the private half of the
// certificate's public key.
func (c *Certificate) KeyMatches() bool {
	if !c.HasPrivateKey() {
		return false
	}
	pub, ok := c.PrivateKey.Public().(interface{ Equal(crypto.PublicKey) bool })
	return ok && pub.Equal(c.Leaf.PublicKey)
}

// PublicKey returns the certificate's public key.
func (c *Certificate) PublicKey() crypto.PublicKey {
	return c.Leaf.PublicKey
}

// ValidAt reports whether t lies inside the certificate validity window.
func (c *Certificate) ValidAt(t time.Time) bool {
	return !t.Before(c.Leaf.NotBefore) && !t.After(c.Leaf.NotAfter)
}

// Thumbprint returns the upper-case hex SHA-1 of cert's DER encoding.
func Thumbprint(cert *x509.Certificate) string {
	sum := sha1.Sum(cert.Raw) //nolint:gosec // see import
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// NormalizeThumbprint trims surrounding whitespace and upper-cases s so
// that thumbprints compare case-insensitively.
func NormalizeThumbprint(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// newCertificate pairs a leaf with a key, rejecting keys that cannot sign
// or that belong to another certificate.
func newCertificate(leaf *x509.Certificate, chain []*x509.Certificate, key any, source string) (*Certificate, error) {
	c := &Certificate{Leaf: leaf, Chain: chain, Source: source}
	if key == nil {
		return c, nil
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, errors.New("private key does not implement crypto.Signer")
	}
	c.PrivateKey = signer
	if !c.KeyMatches() {
		return nil, errKeyMismatch
	}
	return c, nil
}
