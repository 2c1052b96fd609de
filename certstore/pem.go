package certstore

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// parsePEM reads every certificate and at most one private key from data.
// The first certificate is the leaf; any others form the chain. DER input
// (common for .cer files) is accepted when no PEM block is present.
func parsePEM(data []byte) (leaf *x509.Certificate, chain []*x509.Certificate, key any, err error) {
	var sawPEM bool
	for rest := data; ; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		sawPEM = true
		switch block.Type {
		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("parse certificate: %w", err)
			}
			if leaf == nil {
				leaf = cert
			} else {
				chain = append(chain, cert)
			}
		case "PRIVATE KEY", "RSA PRIVATE KEY", "EC PRIVATE KEY":
			if key != nil {
				return nil, nil, nil, errors.New("multiple private keys")
			}
			if key, err = parsePrivateKey(block); err != nil {
				return nil, nil, nil, err
			}
		}
	}

	if !sawPEM {
		cert, err := x509.ParseCertificate(data)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("parse certificate: %w", err)
		}
		return cert, nil, nil, nil
	}
	if leaf == nil {
		return nil, nil, nil, errors.New("no certificate found")
	}
	return leaf, chain, key, nil
}

// parsePrivateKeyPEM reads the first private key block from data.
func parsePrivateKeyPEM(data []byte) (any, error) {
	for rest := data; ; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, errors.New("no private key found")
		}
		switch block.Type {
		case "PRIVATE KEY", "RSA PRIVATE KEY", "EC PRIVATE KEY":
			return parsePrivateKey(block)
		}
	}
}

func parsePrivateKey(block *pem.Block) (any, error) {
	var (
		key any
		err error
	)
	switch block.Type {
	case "PRIVATE KEY":
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("unsupported key block %q", block.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}
