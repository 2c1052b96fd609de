package write

import (
	"bytes"
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/templatex/internal/blobtype"
)

func TestEntryUncompressed(t *testing.T) {
	t.Parallel()

	content := []byte("plain content")
	var out bytes.Buffer
	res, err := Entry(context.Background(), bytes.NewReader(content), &out, nil, make([]byte, 8), blobtype.CompressionNone, int64(len(content)))
	require.NoError(t, err)

	sum := sha256.Sum256(content)
	assert.Equal(t, content, out.Bytes())
	assert.Equal(t, uint64(len(content)), res.DataSize)
	assert.Equal(t, uint64(len(content)), res.OriginalSize)
	assert.Equal(t, sum[:], res.Hash)
}

func TestEntryZstd(t *testing.T) {
	t.Parallel()

	content := []byte(strings.Repeat("templatex ", 500))
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)

	var out bytes.Buffer
	res, err := Entry(context.Background(), bytes.NewReader(content), &out, enc, make([]byte, 1024), blobtype.CompressionZstd, int64(len(content)))
	require.NoError(t, err)
	assert.Less(t, res.DataSize, res.OriginalSize)
	assert.Equal(t, uint64(out.Len()), res.DataSize)

	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	got, err := dec.DecodeAll(out.Bytes(), nil)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestEntryShortSource(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	_, err := Entry(context.Background(), strings.NewReader("abc"), &out, nil, make([]byte, 8), blobtype.CompressionNone, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file size changed")
}

func TestEntryCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	_, err := Entry(ctx, strings.NewReader("abc"), &out, nil, make([]byte, 8), blobtype.CompressionNone, 3)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDefaultSkipCompression(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	small := filepath.Join(dir, "small.txt")
	large := filepath.Join(dir, "large.txt")
	require.NoError(t, os.WriteFile(small, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(large, bytes.Repeat([]byte("x"), 1024), 0o644))

	smallInfo, err := os.Stat(small)
	require.NoError(t, err)
	largeInfo, err := os.Stat(large)
	require.NoError(t, err)

	skip := DefaultSkipCompression(DefaultMinCompressSize)
	assert.True(t, skip("small.txt", smallInfo))
	assert.False(t, skip("large.txt", largeInfo))
	assert.True(t, skip("photo.JPG", largeInfo))
	assert.True(t, skip("nested/bundle.mstx", largeInfo))
	assert.False(t, ShouldSkip("large.txt", largeInfo, []SkipCompressionFunc{nil, skip}))
}

func TestResolveEntryInfoSkipsSymlinks(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "real.txt"), []byte("data"), 0o644))
	if err := os.Symlink("real.txt", filepath.Join(dir, "link.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	root, err := os.OpenRoot(dir)
	require.NoError(t, err)
	defer root.Close()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var regular []string
	for _, d := range entries {
		info, ok, err := ResolveEntryInfo(root, d.Name(), d)
		require.NoError(t, err)
		if ok {
			require.NotNil(t, info)
			regular = append(regular, d.Name())
		}
	}
	assert.Equal(t, []string{"real.txt"}, regular)

	_, err = OpenNoFollow(root, "link.txt")
	require.ErrorIs(t, err, ErrSymlink)

	f, err := OpenNoFollow(root, "real.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestCheckUnchanged(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("one"), 0o644))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	before, err := f.Stat()
	require.NoError(t, err)

	require.NoError(t, CheckUnchanged(f, path, before, true))

	require.NoError(t, os.WriteFile(path, []byte("longer content"), 0o644))
	require.Error(t, CheckUnchanged(f, path, before, true))
	require.NoError(t, CheckUnchanged(f, path, before, false))
}
