package templatex

import (
	"crypto/x509"
	"log/slog"
	"time"

	"github.com/meigma/templatex/archive"
	"github.com/meigma/templatex/certstore"
)

// ArchiveExt is the extension of archives named by Pack.
const ArchiveExt = ".mstx"

// config holds the options shared by every operation. Each operation reads
// only the fields that concern it.
type config struct {
	logger   *slog.Logger
	progress ProgressFunc
	now      func() time.Time

	// pack
	workDir         string
	compression     Compression
	changeDetection ChangeDetection
	skipCompression []archive.SkipCompressionFunc
	maxFiles        int

	// read
	maxFileSize      uint64
	maxDecoderMemory uint64
	limitsSet        bool
	workers          int

	// certificates
	resolver *certstore.Resolver
	stores   []certstore.Store
	trusted  []*x509.Certificate

	// extract
	overwrite     bool
	preserveMode  bool
	preserveTimes bool
}

// Option configures templatex operations.
type Option func(*config)

func newConfig(opts []Option) *config {
	cfg := &config{
		now:         time.Now,
		compression: CompressionZstd,
		overwrite:   true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// log returns the logger, falling back to a discard logger if nil.
func (c *config) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// certResolver returns the resolver used to find certificates by thumbprint.
func (c *config) certResolver() *certstore.Resolver {
	r := c.resolver
	if r == nil {
		stores := c.stores
		if stores == nil {
			stores = certstore.DefaultStores(c.logger)
		}
		r = certstore.NewResolver(c.logger, stores...)
	}
	if len(c.trusted) > 0 {
		r = r.WithStores(certstore.NewTrustStore("trusted", c.trusted...))
	}
	return r
}

func (c *config) createOptions(contentType string) []archive.CreateOption {
	return []archive.CreateOption{
		archive.CreateWithContentType(contentType),
		archive.CreateWithCompression(c.compression),
		archive.CreateWithChangeDetection(c.changeDetection),
		archive.CreateWithSkipCompression(c.skipCompression...),
		archive.CreateWithMaxFiles(c.maxFiles),
		archive.CreateWithLogger(c.logger),
		archive.CreateWithProgress(c.progress),
	}
}

func (c *config) openOptions() []archive.OpenOption {
	opts := []archive.OpenOption{
		archive.OpenWithLogger(c.logger),
		archive.OpenWithWorkers(c.workers),
	}
	if c.limitsSet {
		opts = append(opts,
			archive.OpenWithMaxFileSize(c.maxFileSize),
			archive.OpenWithMaxDecoderMemory(c.maxDecoderMemory),
		)
	}
	return opts
}

// WithLogger sets the logger. Defaults to discarding all output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithProgress sets a callback that receives progress events.
func WithProgress(fn ProgressFunc) Option {
	return func(c *config) {
		c.progress = fn
	}
}

// WithWorkDir sets the directory that receives archives when Pack is called
// without an output path. Defaults to $TMPDIR/templatex.
func WithWorkDir(dir string) Option {
	return func(c *config) {
		c.workDir = dir
	}
}

// WithCompression sets the compression used for packed entries.
// Defaults to CompressionZstd.
func WithCompression(comp Compression) Option {
	return func(c *config) {
		c.compression = comp
	}
}

// WithChangeDetection controls whether Pack verifies that input files did
// not change while being read.
func WithChangeDetection(cd ChangeDetection) Option {
	return func(c *config) {
		c.changeDetection = cd
	}
}

// WithSkipCompression adds predicates that store matching files raw.
func WithSkipCompression(fns ...archive.SkipCompressionFunc) Option {
	return func(c *config) {
		c.skipCompression = append(c.skipCompression, fns...)
	}
}

// WithMaxFiles limits the number of files Pack accepts.
// Zero uses archive.DefaultMaxFiles. Negative means no limit.
func WithMaxFiles(n int) Option {
	return func(c *config) {
		c.maxFiles = n
	}
}

// WithReadLimits bounds the uncompressed size of any single entry and the
// zstd decoder memory when reading archives. Zero disables a limit.
func WithReadLimits(maxFileSize, maxDecoderMemory uint64) Option {
	return func(c *config) {
		c.maxFileSize = maxFileSize
		c.maxDecoderMemory = maxDecoderMemory
		c.limitsSet = true
	}
}

// WithWorkers sets how many entries are hashed concurrently during
// signature validation. Negative forces serial hashing; zero (the default)
// decides from GOMAXPROCS and entry sizes.
func WithWorkers(n int) Option {
	return func(c *config) {
		c.workers = n
	}
}

// WithResolver sets the certificate resolver. It takes precedence over
// WithStores.
func WithResolver(r *certstore.Resolver) Option {
	return func(c *config) {
		c.resolver = r
	}
}

// WithStores replaces the default user and machine certificate stores.
func WithStores(stores ...certstore.Store) Option {
	return func(c *config) {
		c.stores = stores
	}
}

// WithTrustedCertificates adds certificates that validation may use to
// verify signatures, searched after the configured stores.
func WithTrustedCertificates(certs ...*x509.Certificate) Option {
	return func(c *config) {
		c.trusted = append(c.trusted, certs...)
	}
}

// WithClock overrides the time source used for signing timestamps,
// certificate validity checks and default output names.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

// ExtractWithOverwrite controls whether Extract replaces existing files.
// Defaults to true.
func ExtractWithOverwrite(overwrite bool) Option {
	return func(c *config) {
		c.overwrite = overwrite
	}
}

// ExtractWithPreserveMode applies archived permission bits on extraction.
func ExtractWithPreserveMode(preserve bool) Option {
	return func(c *config) {
		c.preserveMode = preserve
	}
}

// ExtractWithPreserveTimes applies archived modification times on extraction.
func ExtractWithPreserveTimes(preserve bool) Option {
	return func(c *config) {
		c.preserveTimes = preserve
	}
}
