package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// CreateFile packs input into a container at output.
//
// Uses atomic writes (temp file + rename) so output is either the complete
// archive or untouched. Parent directories are created as needed. When
// output lies inside input, neither output nor its temp file is packed.
func CreateFile(ctx context.Context, input, output string, opts ...CreateOption) (*Result, error) {
	if err := os.MkdirAll(filepath.Dir(output), 0o750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	var res *Result
	err := writeFileAtomic(output, func(f *os.File) error {
		var err error
		res, err = Create(ctx, input, f, slices.Concat(opts, []CreateOption{CreateWithExclude(f.Name(), output)})...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// rename is replaced in tests.
var rename = os.Rename

// writeFileAtomic runs fill against a temp file next to target, then
// renames the temp file over target.
func writeFileAtomic(target string, fill func(f *os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".templatex-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if err := fill(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
