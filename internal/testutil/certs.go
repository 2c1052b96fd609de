// Package testutil provides helpers for tests across packages.
package testutil

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"software.sslmate.com/src/go-pkcs12"
)

// KeyType selects the key algorithm of a generated certificate.
type KeyType int

const (
	RSA KeyType = iota
	ECDSA
	Ed25519
)

// String returns the key type name.
func (k KeyType) String() string {
	switch k {
	case RSA:
		return "rsa"
	case ECDSA:
		return "ecdsa"
	case Ed25519:
		return "ed25519"
	default:
		return "unknown"
	}
}

// TestCert is a self-signed certificate and its private key.
type TestCert struct {
	Cert *x509.Certificate
	Key  crypto.Signer
}

// CertOption configures NewCert.
type CertOption func(*x509.Certificate)

// WithValidity sets the certificate validity window.
func WithValidity(notBefore, notAfter time.Time) CertOption {
	return func(t *x509.Certificate) {
		t.NotBefore = notBefore
		t.NotAfter = notAfter
	}
}

// WithCommonName sets the subject common name.
func WithCommonName(cn string) CertOption {
	return func(t *x509.Certificate) {
		t.Subject = pkix.Name{CommonName: cn}
	}
}

// NewCert generates a self-signed code-signing certificate.
func NewCert(tb testing.TB, kt KeyType, opts ...CertOption) *TestCert {
	tb.Helper()

	var key crypto.Signer
	var err error
	switch kt {
	case RSA:
		key, err = rsa.GenerateKey(rand.Reader, 2048)
	case ECDSA:
		key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case Ed25519:
		_, key, err = ed25519.GenerateKey(rand.Reader)
	default:
		tb.Fatalf("unknown key type %d", kt)
	}
	if err != nil {
		tb.Fatalf("generate %s key: %v", kt, err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		tb.Fatalf("serial: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "templatex test " + kt.String()},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning},
	}
	for _, opt := range opts {
		opt(tmpl)
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	if err != nil {
		tb.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		tb.Fatalf("parse certificate: %v", err)
	}
	return &TestCert{Cert: cert, Key: key}
}

// PKCS12 encodes the certificate and key as a PKCS#12 bundle.
func (c *TestCert) PKCS12(tb testing.TB, password string) []byte {
	tb.Helper()
	data, err := pkcs12.Modern.Encode(c.Key, c.Cert, nil, password)
	if err != nil {
		tb.Fatalf("encode pkcs12: %v", err)
	}
	return data
}

// WritePKCS12 writes a PKCS#12 bundle to dir/name and returns its path.
func (c *TestCert) WritePKCS12(tb testing.TB, dir, name, password string) string {
	tb.Helper()
	return writeFile(tb, filepath.Join(dir, name), c.PKCS12(tb, password))
}

// CertPEM returns the PEM encoding of the certificate.
func (c *TestCert) CertPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.Cert.Raw})
}

// KeyPEM returns the PKCS#8 PEM encoding of the private key.
func (c *TestCert) KeyPEM(tb testing.TB) []byte {
	tb.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(c.Key)
	if err != nil {
		tb.Fatalf("marshal key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

// WritePEM writes the certificate to dir/name, followed by the private key
// when withKey is set, and returns the path.
func (c *TestCert) WritePEM(tb testing.TB, dir, name string, withKey bool) string {
	tb.Helper()
	data := c.CertPEM()
	if withKey {
		data = append(data, c.KeyPEM(tb)...)
	}
	return writeFile(tb, filepath.Join(dir, name), data)
}

func writeFile(tb testing.TB, path string, data []byte) string {
	tb.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tb.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
	return path
}
