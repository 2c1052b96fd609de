package certstore

import (
	"errors"
	"fmt"
	"os"

	"software.sslmate.com/src/go-pkcs12"
)

// LoadFile decodes a PKCS#12 credential file protected by passphrase.
//
// Every failure, whether the file is missing, the passphrase is wrong or
// the bundle is malformed, wraps ErrInvalidCredential.
func LoadFile(path string, passphrase Secret) (*Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	cert, err := decodePKCS12(data, passphrase, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCredential, path, err)
	}
	return cert, nil
}

func decodePKCS12(data []byte, passphrase Secret, source string) (*Certificate, error) {
	key, leaf, chain, err := pkcs12.DecodeChain(data, passphrase.Reveal())
	if err != nil {
		if errors.Is(err, pkcs12.ErrIncorrectPassword) {
			return nil, errors.New("incorrect passphrase")
		}
		return nil, err
	}
	if leaf == nil {
		return nil, errors.New("bundle holds no certificate")
	}
	return newCertificate(leaf, chain, key, source)
}
