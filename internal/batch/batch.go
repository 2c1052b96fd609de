// Package batch runs per-entry work over archive entries, in parallel when
// the entries are large enough to be worth it.
package batch

import (
	"context"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/templatex/internal/blobtype"
)

// Entry is an alias for blobtype.Entry.
type Entry = blobtype.Entry

const (
	// parallelMinAvgBytes is the minimum average entry size to use parallel processing.
	// Below this threshold, serial processing is more efficient due to reduced overhead.
	parallelMinAvgBytes = 64 << 10 // 64KB

	bufSize = 32 * 1024
)

// Func processes the entry at index i. buf is scratch space owned by the
// calling worker.
type Func func(ctx context.Context, i int, e *Entry, buf []byte) error

// Processor runs a Func over a slice of entries.
type Processor struct {
	workers int // 0 = auto, <0 = serial, >0 = fixed count
	logger  *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithWorkers sets the number of workers for parallel processing.
// Values < 0 force serial processing. Zero uses automatic heuristics.
// Values > 0 force a specific worker count.
func WithWorkers(n int) Option {
	return func(p *Processor) {
		p.workers = n
	}
}

// WithLogger sets the logger for batch processing.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// New creates a Processor.
func New(opts ...Option) *Processor {
	p := &Processor{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Processor) log() *slog.Logger {
	if p.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.logger
}

// Run calls fn for every entry and stops at the first error. With more than
// one worker fn runs concurrently, so it must only write state indexed by i.
func (p *Processor) Run(ctx context.Context, entries []Entry, fn Func) error {
	workers := p.workerCount(entries)
	p.log().Debug("batch processing", "entries", len(entries), "workers", workers)

	if workers < 2 {
		buf := make([]byte, bufSize)
		for i := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, i, &entries[i], buf); err != nil {
				return err
			}
		}
		return nil
	}

	eg, ctx := errgroup.WithContext(ctx)
	next := make(chan int)
	eg.Go(func() error {
		defer close(next)
		for i := range entries {
			select {
			case next <- i:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	for range workers {
		eg.Go(func() error {
			buf := make([]byte, bufSize)
			for i := range next {
				if err := fn(ctx, i, &entries[i], buf); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return eg.Wait()
}

func (p *Processor) workerCount(entries []Entry) int {
	if len(entries) < 2 || p.workers < 0 {
		return 1
	}

	workers := p.workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
		if workers < 2 {
			return 1
		}
		var total uint64
		for i := range entries {
			next := total + entries[i].OriginalSize
			if next < total {
				total = ^uint64(0)
				break
			}
			total = next
		}
		if total/uint64(len(entries)) < parallelMinAvgBytes {
			return 1
		}
	}

	return min(workers, len(entries))
}
