package templatex

import "github.com/meigma/templatex/certstore"

// LoadCertificate loads a PKCS#12 credential file. A missing file or a
// wrong passphrase yields ErrInvalidCredential.
func LoadCertificate(path string, passphrase certstore.Secret) (*certstore.Certificate, error) {
	return certstore.LoadFile(path, passphrase)
}

// LoadCertificateByThumbprint searches the user store, then the machine
// store (or the stores set by WithStores / WithResolver), for a certificate
// with the given SHA-1 thumbprint. It returns (nil, nil) when none matches.
func LoadCertificateByThumbprint(thumbprint string, opts ...Option) (*certstore.Certificate, error) {
	cfg := newConfig(opts)
	return cfg.certResolver().Lookup(thumbprint)
}
