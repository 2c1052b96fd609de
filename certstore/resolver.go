package certstore

import (
	"fmt"
	"log/slog"
)

// Resolver turns a Ref into a Certificate.
type Resolver struct {
	stores []Store
	logger *slog.Logger
}

// NewResolver returns a resolver searching stores in order.
// logger may be nil.
func NewResolver(logger *slog.Logger, stores ...Store) *Resolver {
	return &Resolver{stores: stores, logger: logger}
}

func (r *Resolver) log() *slog.Logger {
	if r.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.logger
}

// Stores returns the stores in search order.
func (r *Resolver) Stores() []Store {
	return r.stores
}

// WithStores returns a copy of r that also searches extra after its own
// stores.
func (r *Resolver) WithStores(extra ...Store) *Resolver {
	stores := make([]Store, 0, len(r.stores)+len(extra))
	stores = append(stores, r.stores...)
	stores = append(stores, extra...)
	return &Resolver{stores: stores, logger: r.logger}
}

// Lookup searches every store in order and returns the first certificate
// with the given thumbprint. It returns (nil, nil) when no store has one.
func (r *Resolver) Lookup(thumbprint string) (*Certificate, error) {
	for _, s := range r.stores {
		cert, err := s.Lookup(thumbprint)
		if err != nil {
			return nil, fmt.Errorf("store %s: %w", s.Name(), err)
		}
		if cert != nil {
			r.log().Debug("resolved certificate", "store", s.Name(), "thumbprint", cert.Thumbprint())
			return cert, nil
		}
	}
	r.log().Debug("certificate not found", "thumbprint", NormalizeThumbprint(thumbprint))
	return nil, nil
}

// Resolve loads the certificate ref points at. A ThumbprintRef that
// matches nothing yields (nil, nil).
func (r *Resolver) Resolve(ref Ref) (*Certificate, error) {
	switch ref := ref.(type) {
	case FileRef:
		return LoadFile(ref.Path, ref.Passphrase)
	case *FileRef:
		return LoadFile(ref.Path, ref.Passphrase)
	case ThumbprintRef:
		return r.Lookup(ref.Thumbprint)
	case *ThumbprintRef:
		return r.Lookup(ref.Thumbprint)
	default:
		return nil, ErrNoReference
	}
}
