package templatex

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/meigma/templatex/archive"
	"github.com/meigma/templatex/certstore"
	"github.com/meigma/templatex/signature"
)

// Pack packs input into an archive and returns the archive's absolute path.
//
// input is a directory, whose files are stored relative to it, or a single
// file. A single file is stored under its path relative to the current
// directory when it lies beneath it, else under its base name, so
// extraction recreates the same nesting. An empty output
// derives a timestamped name in the working directory set by WithWorkDir;
// a relative output resolves against the current directory. Parent
// directories are created and the archive is written atomically.
//
// contentType is an opaque label stored in, and signed with, the manifest.
func Pack(ctx context.Context, input, output, contentType string, opts ...Option) (string, error) {
	cfg := newConfig(opts)
	path, _, err := pack(ctx, cfg, input, output, contentType)
	return path, err
}

// PackAndSign packs input and signs the result with the certificate ref
// resolves to.
//
// A thumbprint that matches no store yields ErrSignCertNotFound; a
// credential file that cannot be opened yields ErrInvalidCredential; a
// certificate without a usable private key, or outside its validity
// window, or whose private key belongs to another certificate, yields
// ErrSigningFailed. The certificate is resolved before anything is
// written, and the signed archive replaces output only once complete, so
// failures leave output as it was.
func PackAndSign(ctx context.Context, input, output string, ref certstore.Ref, contentType string, opts ...Option) (string, error) {
	cfg := newConfig(opts)
	if err := checkInput(input); err != nil {
		return "", err
	}
	cert, err := cfg.certResolver().Resolve(ref)
	if err != nil {
		return "", err
	}
	if cert == nil {
		return "", fmt.Errorf("%w: %v", ErrSignCertNotFound, describeRef(ref))
	}
	return packAndSign(ctx, cfg, input, output, cert, contentType)
}

// PackAndSignWithCertificate is PackAndSign with an already loaded
// certificate.
func PackAndSignWithCertificate(ctx context.Context, input, output string, cert *certstore.Certificate, contentType string, opts ...Option) (string, error) {
	cfg := newConfig(opts)
	if cert == nil {
		return "", fmt.Errorf("%w: no certificate", ErrSignCertNotFound)
	}
	return packAndSign(ctx, cfg, input, output, cert, contentType)
}

func packAndSign(ctx context.Context, cfg *config, input, output string, cert *certstore.Certificate, contentType string) (string, error) {
	// Fail before packing if the certificate cannot sign at all.
	if !cert.HasPrivateKey() {
		return "", fmt.Errorf("%w: certificate %s has no private key", ErrSigningFailed, cert.Thumbprint())
	}
	if !cert.KeyMatches() {
		return "", fmt.Errorf("%w: private key does not match certificate %s", ErrSigningFailed, cert.Thumbprint())
	}
	if now := cfg.now(); !cert.ValidAt(now) {
		return "", fmt.Errorf("%w: certificate %s is not valid at %s", ErrSigningFailed, cert.Thumbprint(), now.Format(time.RFC3339))
	}

	target, createOpts, err := prepareOutput(cfg, input, output, contentType)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	// Packed and signed beside target, then renamed over it.
	tmp, err := os.CreateTemp(filepath.Dir(target), ".templatex-sign-*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	block, err := signInto(ctx, cfg, input, target, tmpPath, cert, append(createOpts, archive.CreateWithExclude(target)))
	if err == nil {
		err = os.Rename(tmpPath, target)
	}
	if err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	cfg.log().Info("archive signed",
		"path", target,
		"thumbprint", block.Thumbprint,
		"alg", block.Algorithm,
		"digest", block.SignedDigest.String())
	return target, nil
}

// signInto packs input to path and attaches a signature made with cert.
// Progress is reported against target, the path the archive will take.
func signInto(ctx context.Context, cfg *config, input, target, path string, cert *certstore.Certificate, createOpts []archive.CreateOption) (*signature.Block, error) {
	res, err := create(ctx, cfg, input, path, createOpts)
	if err != nil {
		return nil, err
	}
	cfg.reportProgress(ProgressEvent{Stage: StageSigning, Path: target})
	block, err := signature.Sign(cert, res.ManifestDigest, cfg.now())
	if err != nil {
		return nil, err
	}
	if err := archive.AttachSignature(path, block); err != nil {
		return nil, err
	}
	return block, nil
}

func pack(ctx context.Context, cfg *config, input, output, contentType string) (string, *archive.Result, error) {
	target, createOpts, err := prepareOutput(cfg, input, output, contentType)
	if err != nil {
		return "", nil, err
	}
	res, err := create(ctx, cfg, input, target, createOpts)
	if err != nil {
		return "", nil, err
	}
	return target, res, nil
}

// prepareOutput resolves the absolute output path and the create options
// for input.
func prepareOutput(cfg *config, input, output, contentType string) (string, []archive.CreateOption, error) {
	info, err := statInput(input)
	if err != nil {
		return "", nil, err
	}

	if output == "" {
		output = defaultOutput(input, info.IsDir(), cfg.workDir, cfg.now())
	}
	output, err = absPath(output)
	if err != nil {
		return "", nil, err
	}

	createOpts := cfg.createOptions(contentType)
	if !info.IsDir() {
		name, err := singleFileEntryName(input)
		if err != nil {
			return "", nil, err
		}
		createOpts = append(createOpts, archive.CreateWithEntryName(name))
	}
	return output, createOpts, nil
}

func create(ctx context.Context, cfg *config, input, output string, createOpts []archive.CreateOption) (*archive.Result, error) {
	res, err := archive.CreateFile(ctx, input, output, createOpts...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", input, err)
	}
	cfg.log().Info("archive packed", "input", input, "output", output, "files", len(res.Entries), "digest", res.ManifestDigest.String())
	return res, nil
}

func statInput(input string) (fs.FileInfo, error) {
	if input == "" {
		return nil, fmt.Errorf("%w: empty input path", ErrNotFound)
	}
	info, err := os.Stat(input)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, input)
		}
		return nil, err
	}
	return info, nil
}

func checkInput(input string) error {
	_, err := statInput(input)
	return err
}

func describeRef(ref certstore.Ref) string {
	switch r := ref.(type) {
	case certstore.ThumbprintRef:
		return "thumbprint " + certstore.NormalizeThumbprint(r.Thumbprint)
	case *certstore.ThumbprintRef:
		return "thumbprint " + certstore.NormalizeThumbprint(r.Thumbprint)
	default:
		return fmt.Sprintf("%T", ref)
	}
}
