package templatex

import (
	"context"
	"fmt"
	"io"

	"github.com/meigma/templatex/archive"
	"github.com/meigma/templatex/internal/extract"
)

// Extract restores every entry of the archive at archivePath under
// destination, recreating intermediate directories.
//
// An empty destination means the current directory; a relative one
// resolves against it. When validate is true the signature is checked
// first (see ValidateSignatures) and a false verdict returns
// ErrInvalidSignature without writing anything. When validate is false a
// signed archive is extracted with a warning.
//
// Regardless of validate, every entry is checked against the hash recorded
// in the archive index, and entries are staged inside destination before
// being moved into place together. Any failure leaves destination as it
// was. Existing files are replaced unless ExtractWithOverwrite(false).
func Extract(ctx context.Context, archivePath, destination string, validate bool, opts ...Option) error {
	cfg := newConfig(opts)

	src, err := absPath(archivePath)
	if err != nil {
		return err
	}
	dest, err := absPath(destination)
	if err != nil {
		return err
	}

	a, err := archive.Open(src, cfg.openOptions()...)
	if err != nil {
		return err
	}
	defer a.Close()

	if validate {
		res, err := verifyArchive(ctx, cfg, a)
		if err != nil {
			return err
		}
		if !res.Valid {
			cfg.log().Warn("refusing to extract archive", "path", src, "reason", res.Reason)
			return fmt.Errorf("%w: %s: %s", ErrInvalidSignature, src, res.Reason)
		}
	} else if a.Signed() {
		cfg.log().Warn("extracting signed archive without signature validation", "path", src)
	}

	n, err := restore(ctx, cfg, a, dest)
	if err != nil {
		return fmt.Errorf("extract %s: %w", src, err)
	}
	cfg.log().Info("archive extracted", "path", src, "dest", dest, "files", n)
	return nil
}

func restore(ctx context.Context, cfg *config, a *archive.Archive, dest string) (int, error) {
	sink, err := extract.NewSink(dest,
		extract.WithOverwrite(cfg.overwrite),
		extract.WithPreserveMode(cfg.preserveMode),
		extract.WithPreserveTimes(cfg.preserveTimes),
		extract.WithLogger(cfg.logger),
	)
	if err != nil {
		return 0, err
	}

	buf := make([]byte, 32*1024)
	entries := a.Entries()
	var bytesDone uint64
	for i := range entries {
		e := &entries[i]
		if err := ctx.Err(); err != nil {
			sink.Discard()
			return 0, err
		}
		err := sink.Write(e, func(w io.Writer) error {
			_, err := a.CopyEntry(ctx, e, w, buf)
			return err
		})
		if err != nil {
			sink.Discard()
			return 0, err
		}
		bytesDone += e.OriginalSize
		cfg.reportProgress(ProgressEvent{
			Stage:      StageExtracting,
			Path:       e.Path,
			BytesDone:  bytesDone,
			FilesDone:  i + 1,
			FilesTotal: len(entries),
		})
	}
	return sink.Commit()
}
