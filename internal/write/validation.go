package write

import (
	"fmt"
	"io/fs"
	"os"
)

// CheckUnchanged verifies that f still matches the info observed before it
// was read. It is a no-op unless strict is set.
func CheckUnchanged(f *os.File, path string, before fs.FileInfo, strict bool) error {
	if !strict {
		return nil
	}
	after, err := f.Stat()
	if err != nil {
		return err
	}
	if !os.SameFile(before, after) {
		return fmt.Errorf("file replaced while packing: %s", path)
	}
	if after.Size() != before.Size() || !after.ModTime().Equal(before.ModTime()) || after.Mode().Perm() != before.Mode().Perm() {
		return fmt.Errorf("file changed while packing: %s", path)
	}
	return nil
}

// ResolveEntryInfo returns the FileInfo for a walked directory entry.
// ok is false for anything that is not a regular file, including symlinks,
// which are never followed.
func ResolveEntryInfo(root *os.Root, fsPath string, d fs.DirEntry) (info fs.FileInfo, ok bool, err error) {
	dtype := d.Type()
	if dtype&fs.ModeSymlink != 0 || (dtype != 0 && !dtype.IsRegular()) {
		return nil, false, nil
	}

	info, err = root.Lstat(fsPath)
	if err != nil {
		return nil, false, err
	}
	if !info.Mode().IsRegular() {
		return nil, false, nil
	}
	return info, true, nil
}
