package extract

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/templatex/internal/blobtype"
	"github.com/meigma/templatex/internal/testutil"
)

func content(s string) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	}
}

func stagingDirs(t *testing.T, dest string) []string {
	t.Helper()
	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), stagingPrefix) {
			out = append(out, e.Name())
		}
	}
	return out
}

func TestSinkCommit(t *testing.T) {
	t.Parallel()

	dest := filepath.Join(t.TempDir(), "new", "dest")
	s, err := NewSink(dest, WithOverwrite(true))
	require.NoError(t, err)

	require.NoError(t, s.Write(&blobtype.Entry{Path: "a.txt"}, content("a")))
	require.NoError(t, s.Write(&blobtype.Entry{Path: "dir/b.txt"}, content("b")))

	assert.Empty(t, testutil.ReadTree(t, dest)["a.txt"], "nothing visible before commit")

	n, err := s.Commit()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, map[string]string{"a.txt": "a", "dir/b.txt": "b"}, testutil.ReadTree(t, dest))
	assert.Empty(t, stagingDirs(t, dest))

	_, err = s.Commit()
	require.Error(t, err)
}

func TestSinkDiscard(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()
	testutil.WriteTree(t, dest, map[string]string{"keep.txt": "old"})

	s, err := NewSink(dest, WithOverwrite(true))
	require.NoError(t, err)
	require.NoError(t, s.Write(&blobtype.Entry{Path: "keep.txt"}, content("new")))

	boom := errors.New("boom")
	err = s.Write(&blobtype.Entry{Path: "bad.txt"}, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, s.Discard())
	require.NoError(t, s.Discard())

	assert.Equal(t, map[string]string{"keep.txt": "old"}, testutil.ReadTree(t, dest))
	assert.Empty(t, stagingDirs(t, dest))
}

func TestSinkOverwrite(t *testing.T) {
	t.Parallel()

	for _, overwrite := range []bool{true, false} {
		dest := t.TempDir()
		testutil.WriteTree(t, dest, map[string]string{"f.txt": "old"})

		s, err := NewSink(dest, WithOverwrite(overwrite))
		require.NoError(t, err)
		require.NoError(t, s.Write(&blobtype.Entry{Path: "f.txt"}, content("new")))
		require.NoError(t, s.Write(&blobtype.Entry{Path: "g.txt"}, content("g")))
		_, err = s.Commit()
		require.NoError(t, err)

		want := "old"
		if overwrite {
			want = "new"
		}
		got := testutil.ReadTree(t, dest)
		assert.Equal(t, want, got["f.txt"])
		assert.Equal(t, "g", got["g.txt"])
	}
}

func TestSinkPreserveMetadata(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()
	mtime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	s, err := NewSink(dest, WithPreserveMode(true), WithPreserveTimes(true))
	require.NoError(t, err)
	require.NoError(t, s.Write(&blobtype.Entry{Path: "x.sh", Mode: 0o700, ModTime: mtime}, content("#!/bin/sh")))
	_, err = s.Commit()
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dest, "x.sh"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mtime))
	if filepath.Separator == '/' {
		assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
	}
}

func TestSinkCommitConflictLeavesDestination(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		existing map[string]string
		conflict string
	}{
		{name: "directory at file path", existing: map[string]string{"b/keep.txt": "keep"}, conflict: "b"},
		{name: "file at directory path", existing: map[string]string{"c": "file"}, conflict: "c/d.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dest := t.TempDir()
			testutil.WriteTree(t, dest, tt.existing)

			s, err := NewSink(dest, WithOverwrite(true))
			require.NoError(t, err)
			require.NoError(t, s.Write(&blobtype.Entry{Path: "a.txt"}, content("a")))
			require.NoError(t, s.Write(&blobtype.Entry{Path: "new/x.txt"}, content("x")))
			require.NoError(t, s.Write(&blobtype.Entry{Path: tt.conflict}, content("conflict")))

			n, err := s.Commit()
			require.Error(t, err)
			assert.Zero(t, n)
			assert.Equal(t, tt.existing, testutil.ReadTree(t, dest))
			assert.NoDirExists(t, filepath.Join(dest, "new"))
			assert.Empty(t, stagingDirs(t, dest))
		})
	}
}

func TestSinkRollback(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()
	testutil.WriteTree(t, dest, map[string]string{"f.txt": "old", "keep/k.txt": "k"})

	s, err := NewSink(dest, WithOverwrite(true))
	require.NoError(t, err)
	require.NoError(t, s.Write(&blobtype.Entry{Path: "f.txt"}, content("new")))
	require.NoError(t, s.Write(&blobtype.Entry{Path: "keep/g.txt"}, content("g")))
	require.NoError(t, s.Write(&blobtype.Entry{Path: "x/y/z.txt"}, content("z")))

	var undo []func() error
	for i := range s.staged {
		require.NoError(t, s.commitEntry(i, &undo))
	}
	assert.Equal(t, map[string]string{"f.txt": "new", "keep/g.txt": "g", "keep/k.txt": "k", "x/y/z.txt": "z"},
		without(testutil.ReadTree(t, dest), stagingPrefix))

	s.rollback(undo)
	require.NoError(t, s.Discard())

	assert.Equal(t, map[string]string{"f.txt": "old", "keep/k.txt": "k"}, testutil.ReadTree(t, dest))
	assert.NoDirExists(t, filepath.Join(dest, "x"))
	assert.Empty(t, stagingDirs(t, dest))
}

// without drops paths under a top-level prefix.
func without(tree map[string]string, prefix string) map[string]string {
	out := make(map[string]string, len(tree))
	for k, v := range tree {
		if !strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out
}
