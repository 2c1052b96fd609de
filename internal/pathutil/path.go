// Package pathutil provides helpers for the slash-separated paths stored in
// an archive index.
package pathutil

import "strings"

// Base returns the last element of path. "" and "." yield ".".
func Base(path string) string {
	if path == "" || path == "." {
		return "."
	}
	path = strings.TrimSuffix(path, "/")
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// DirPrefix returns the prefix shared by every entry below the directory
// name. The root "." has the empty prefix.
func DirPrefix(name string) string {
	if name == "." || name == "" {
		return ""
	}
	return name + "/"
}

// Child splits path, which must start with prefix, into the name of the
// immediate child of the prefix directory. isDir reports whether path
// continues below that child.
func Child(path, prefix string) (name string, isDir bool) {
	rel := strings.TrimPrefix(path, prefix)
	if i := strings.IndexByte(rel, '/'); i >= 0 {
		return rel[:i], true
	}
	return rel, false
}
