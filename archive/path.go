package archive

import "strings"

// NormalizePath converts a user-provided path to fs.ValidPath format.
//
// Leading and trailing slashes are stripped, backslashes become slashes,
// and runs of slashes collapse: "/etc//nginx/" becomes "etc/nginx". An empty
// path, or one made only of slashes, becomes ".".
//
// "." and ".." elements are preserved so that lookups reject them.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	parts := strings.Split(p, "/")
	kept := parts[:0]
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	if len(kept) == 0 {
		return "."
	}
	return strings.Join(kept, "/")
}
