package templatex_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/templatex"
	"github.com/meigma/templatex/internal/testutil"
)

// These tests change the working directory and cannot run in parallel.

func TestPathNormalizationScenarios(t *testing.T) {
	ctx := context.Background()
	env := newSigningEnv(t, testutil.ECDSA)

	cwd := t.TempDir()
	t.Chdir(cwd)
	testutil.WriteTree(t, cwd, map[string]string{"Locations/SampleContent.txt": "sample"})

	out, err := templatex.PackAndSign(ctx,
		filepath.Join("Locations", "SampleContent.txt"),
		filepath.Join("Locations", "SignedContent.package"),
		env.ref(), "", env.opts...)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, "Locations", "SignedContent.package"), out)

	info, err := templatex.Inspect(out)
	require.NoError(t, err)
	require.Len(t, info.Entries, 1)
	assert.Equal(t, "Locations/SampleContent.txt", info.Entries[0].Path)

	relOut := filepath.Join("Locations", "SignedContent.package")

	t.Run("empty destination", func(t *testing.T) {
		require.NoError(t, os.Remove(filepath.Join(cwd, "Locations", "SampleContent.txt")))
		require.NoError(t, templatex.Extract(ctx, relOut, "", true, env.opts...))
		assertFile(t, filepath.Join(cwd, "Locations", "SampleContent.txt"), "sample")
	})

	t.Run("relative destination", func(t *testing.T) {
		require.NoError(t, templatex.Extract(ctx, relOut, "NewDirToExtract", true, env.opts...))
		assertFile(t, filepath.Join(cwd, "NewDirToExtract", "Locations", "SampleContent.txt"), "sample")
	})

	t.Run("absolute destination", func(t *testing.T) {
		abs := filepath.Join(t.TempDir(), "Temp", "NewContent", "Extracted")
		require.NoError(t, templatex.Extract(ctx, relOut, abs, true, env.opts...))
		assertFile(t, filepath.Join(abs, "Locations", "SampleContent.txt"), "sample")
	})
}

func TestSingleFileOutsideWorkingDirectory(t *testing.T) {
	ctx := context.Background()

	outside := t.TempDir()
	testutil.WriteTree(t, outside, map[string]string{"deep/nested/file.txt": "x"})
	t.Chdir(t.TempDir())

	out, err := templatex.Pack(ctx, filepath.Join(outside, "deep", "nested", "file.txt"), "packed.mstx", "")
	require.NoError(t, err)

	require.NoError(t, templatex.Extract(ctx, out, "dest", false))
	assertFile(t, filepath.Join("dest", "file.txt"), "x")
}

func TestFolderInputRelativePaths(t *testing.T) {
	ctx := context.Background()

	cwd := t.TempDir()
	t.Chdir(cwd)
	testutil.WriteTree(t, cwd, map[string]string{"input/a/b.txt": "b", "input/c.txt": "c"})

	out, err := templatex.Pack(ctx, "input", filepath.Join("out", "pkg.mstx"), "")
	require.NoError(t, err)

	require.NoError(t, templatex.Extract(ctx, out, "restored", false))
	assert.Equal(t, map[string]string{"a/b.txt": "b", "c.txt": "c"}, testutil.ReadTree(t, filepath.Join(cwd, "restored")))
}

func assertFile(t *testing.T, path, want string) {
	t.Helper()
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, string(got))
}
