package file

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// DecompressPool manages reusable zstd decoders.
//
// Decoders are created with a single goroutine each; archives are read one
// entry at a time, so decoder concurrency only costs memory.
type DecompressPool struct {
	pool             sync.Pool
	maxDecoderMemory uint64
}

// NewDecompressPool creates a pool of zstd decoders.
// If maxMemory is 0, no memory limit is applied to decoders.
func NewDecompressPool(maxMemory uint64) *DecompressPool {
	return &DecompressPool{maxDecoderMemory: maxMemory}
}

// Get returns a decoder configured to read from r.
// The caller must call the returned release function when done.
// If an error is returned, no release function needs to be called.
func (p *DecompressPool) Get(r io.Reader) (*zstd.Decoder, func(), error) {
	if v, ok := p.pool.Get().(*zstd.Decoder); ok {
		if err := v.Reset(r); err == nil {
			return v, p.releaseFunc(v), nil
		}
		v.Close()
	}

	dec, err := p.newDecoder(r)
	if err != nil {
		return nil, nil, err
	}
	return dec, p.releaseFunc(dec), nil
}

func (p *DecompressPool) releaseFunc(dec *zstd.Decoder) func() {
	return func() {
		_ = dec.Reset(nil) //nolint:errcheck // clearing state before pool return
		p.pool.Put(dec)
	}
}

// newDecoder creates a new zstd decoder with the configured memory limit.
func (p *DecompressPool) newDecoder(r io.Reader) (*zstd.Decoder, error) {
	opts := []zstd.DOption{
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderLowmem(true),
	}
	if p.maxDecoderMemory != 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(p.maxDecoderMemory))
	}
	return zstd.NewReader(r, opts...)
}
