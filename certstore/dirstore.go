package certstore

import (
	"crypto/x509"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Store looks certificates up by thumbprint.
//
// Lookup returns (nil, nil) when the store holds no matching certificate.
// Stores are read-only.
type Store interface {
	Name() string
	Lookup(thumbprint string) (*Certificate, error)
}

// DirStore is a Store backed by a directory of certificate files.
//
// Recognized files:
//   - .pem, .crt, .cer: a PEM (or DER) certificate, optionally followed by
//     a private key in the same file or in a sibling file with a .key
//     extension
//   - .pfx, .p12: a PKCS#12 bundle without a passphrase
//
// Files that cannot be parsed are skipped. A PEM private key that does not
// match its certificate is ignored and the certificate is kept for
// verification only.
type DirStore struct {
	name   string
	dir    string
	logger *slog.Logger
}

// DirStoreOption configures a DirStore.
type DirStoreOption func(*DirStore)

// WithStoreName sets the name reported by Name. Defaults to the directory.
func WithStoreName(name string) DirStoreOption {
	return func(s *DirStore) {
		s.name = name
	}
}

// WithStoreLogger sets the logger used to report skipped files.
func WithStoreLogger(logger *slog.Logger) DirStoreOption {
	return func(s *DirStore) {
		s.logger = logger
	}
}

// NewDirStore returns a store reading certificates from dir.
// dir need not exist; a missing directory is an empty store.
func NewDirStore(dir string, opts ...DirStoreOption) *DirStore {
	s := &DirStore{name: dir, dir: dir}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the store name.
func (s *DirStore) Name() string {
	return s.name
}

// Dir returns the backing directory.
func (s *DirStore) Dir() string {
	return s.dir
}

func (s *DirStore) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Lookup returns the certificate whose thumbprint equals thumbprint,
// compared case-insensitively.
func (s *DirStore) Lookup(thumbprint string) (*Certificate, error) {
	want := NormalizeThumbprint(thumbprint)
	if want == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read store %s: %w", s.name, err)
	}

	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		cert, err := s.load(path)
		if err != nil {
			s.log().Debug("skipping store entry", "store", s.name, "path", path, "error", err)
			continue
		}
		if cert == nil || cert.Thumbprint() != want {
			continue
		}
		s.log().Debug("certificate found", "store", s.name, "path", path, "thumbprint", want)
		return cert, nil
	}
	return nil, nil
}

// All returns every certificate the store can parse.
func (s *DirStore) All() ([]*Certificate, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read store %s: %w", s.name, err)
	}
	var certs []*Certificate
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		cert, err := s.load(path)
		if err != nil {
			s.log().Debug("skipping store entry", "store", s.name, "path", path, "error", err)
			continue
		}
		if cert != nil {
			certs = append(certs, cert)
		}
	}
	return certs, nil
}

// load parses one store file. It returns (nil, nil) for files the store
// does not recognize.
func (s *DirStore) load(path string) (*Certificate, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pfx", ".p12":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return decodePKCS12(data, "", path)
	case ".pem", ".crt", ".cer":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		leaf, chain, key, err := parsePEM(data)
		if err != nil {
			return nil, err
		}
		if key == nil {
			key, err = s.siblingKey(path)
			if err != nil {
				return nil, err
			}
		}
		cert, err := newCertificate(leaf, chain, key, path)
		if errors.Is(err, errKeyMismatch) {
			s.log().Debug("ignoring private key that does not match certificate", "store", s.name, "path", path)
			return newCertificate(leaf, chain, nil, path)
		}
		return cert, err
	default:
		return nil, nil
	}
}

// siblingKey loads <name>.key next to a certificate file, if present.
func (s *DirStore) siblingKey(certPath string) (any, error) {
	keyPath := strings.TrimSuffix(certPath, filepath.Ext(certPath)) + ".key"
	data, err := os.ReadFile(keyPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return parsePrivateKeyPEM(data)
}

// MemoryStore is a Store over certificates held in memory.
type MemoryStore struct {
	name  string
	certs []*Certificate
}

// NewMemoryStore returns a store holding certs.
func NewMemoryStore(name string, certs ...*Certificate) *MemoryStore {
	return &MemoryStore{name: name, certs: certs}
}

// NewTrustStore wraps bare X.509 certificates in a verification-only store.
func NewTrustStore(name string, certs ...*x509.Certificate) *MemoryStore {
	s := &MemoryStore{name: name}
	for _, c := range certs {
		s.certs = append(s.certs, &Certificate{Leaf: c, Source: name})
	}
	return s
}

// Name returns the store name.
func (s *MemoryStore) Name() string {
	return s.name
}

// Lookup returns the first certificate whose thumbprint matches.
func (s *MemoryStore) Lookup(thumbprint string) (*Certificate, error) {
	want := NormalizeThumbprint(thumbprint)
	for _, c := range s.certs {
		if c.Thumbprint() == want {
			return c, nil
		}
	}
	return nil, nil
}
