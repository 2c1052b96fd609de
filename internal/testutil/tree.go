package testutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

// WriteTree creates files under dir from a map of slash-separated relative
// paths to contents.
func WriteTree(tb testing.TB, dir string, files map[string]string) {
	tb.Helper()
	for name, content := range files {
		writeFile(tb, filepath.Join(dir, filepath.FromSlash(name)), []byte(content))
	}
}

// ReadTree returns every regular file under dir keyed by slash-separated
// relative path.
func ReadTree(tb testing.TB, dir string) map[string]string {
	tb.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		tb.Fatalf("read tree %s: %v", dir, err)
	}
	return out
}

// CountFiles returns the number of regular files under dir.
func CountFiles(tb testing.TB, dir string) int {
	tb.Helper()
	return len(ReadTree(tb, dir))
}
