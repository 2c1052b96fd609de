package templatex

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// outputTimeLayout formats the timestamp in derived archive names.
const outputTimeLayout = "20060102150405"

// absPath resolves p against the working directory. An empty p is the
// working directory itself.
func absPath(p string) (string, error) {
	if p == "" {
		return os.Getwd()
	}
	return filepath.Abs(p)
}

// defaultWorkDir is where Pack writes archives when no output is given.
func defaultWorkDir() string {
	return filepath.Join(os.TempDir(), "templatex")
}

// defaultOutput derives "<name>_<yyyyMMddHHmmss>.mstx" inside workDir.
// Files drop their extension so "doc.txt" becomes "doc_....mstx".
func defaultOutput(input string, isDir bool, workDir string, now time.Time) string {
	if workDir == "" {
		workDir = defaultWorkDir()
	}
	name := filepath.Base(input)
	if !isDir {
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "archive"
	}
	return filepath.Join(workDir, name+"_"+now.Format(outputTimeLayout)+ArchiveExt)
}

// singleFileEntryName names the entry for a single-file input: its path
// relative to the working directory when the file lies beneath it,
// otherwise its base name. Extracting then recreates the same nesting
// under the destination.
func singleFileEntryName(input string) (string, error) {
	abs, err := filepath.Abs(input)
	if err != nil {
		return "", err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return filepath.Base(abs), nil
	}
	rel, err := filepath.Rel(cwd, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return filepath.Base(abs), nil
	}
	return filepath.ToSlash(rel), nil
}
