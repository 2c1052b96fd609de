package archive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/templatex/internal/testutil"
	"github.com/meigma/templatex/signature"
)

var sampleTree = map[string]string{
	"a.txt":              "alpha",
	"a/b.txt":            "bravo",
	"a/c/d.txt":          strings.Repeat("delta ", 200),
	"Locations/Info.txt": "where",
	"empty.txt":          "",
	"image.png":          strings.Repeat("\x89PNG", 100),
}

func createArchive(t *testing.T, files map[string]string, opts ...CreateOption) (string, *Result) {
	t.Helper()
	src := t.TempDir()
	testutil.WriteTree(t, src, files)
	out := filepath.Join(t.TempDir(), "out", "test.mstx")
	res, err := CreateFile(context.Background(), src, out, opts...)
	require.NoError(t, err)
	return out, res
}

func TestCreateOpenRoundTrip(t *testing.T) {
	t.Parallel()

	path, res := createArchive(t, sampleTree, CreateWithContentType("templates/v1"))
	assert.Len(t, res.Entries, len(sampleTree))

	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "templates/v1", a.ContentType())
	assert.Equal(t, len(sampleTree), a.Len())
	assert.False(t, a.Signed())
	assert.Equal(t, res.ManifestDigest, a.ManifestDigest())

	for name, content := range sampleTree {
		got, err := a.ReadFile(context.Background(), name)
		require.NoError(t, err, name)
		assert.Equal(t, content, string(got), name)
	}

	var paths []string
	for _, e := range a.Entries() {
		paths = append(paths, e.Path)
	}
	assert.IsNonDecreasing(t, paths)
}

func TestCreateCompressionSelection(t *testing.T) {
	t.Parallel()

	path, _ := createArchive(t, sampleTree)
	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	big, ok := a.Entry("a/c/d.txt")
	require.True(t, ok)
	assert.Equal(t, CompressionZstd, big.Compression)
	assert.Less(t, big.DataSize, big.OriginalSize)

	small, ok := a.Entry("a.txt")
	require.True(t, ok)
	assert.Equal(t, CompressionNone, small.Compression)

	png, ok := a.Entry("/image.png")
	require.True(t, ok)
	assert.Equal(t, CompressionNone, png.Compression)

	rawPath, _ := createArchive(t, sampleTree, CreateWithCompression(CompressionNone))
	raw, err := Open(rawPath)
	require.NoError(t, err)
	defer raw.Close()
	for _, e := range raw.Entries() {
		assert.Equal(t, CompressionNone, e.Compression, e.Path)
	}
}

func TestCreateDeterministicManifest(t *testing.T) {
	t.Parallel()

	_, first := createArchive(t, sampleTree, CreateWithContentType("x"))
	_, second := createArchive(t, sampleTree, CreateWithContentType("x"))
	assert.Equal(t, first.ManifestDigest, second.ManifestDigest)

	_, other := createArchive(t, sampleTree, CreateWithContentType("y"))
	assert.NotEqual(t, first.ManifestDigest, other.ManifestDigest)
}

func TestCreateSingleFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteTree(t, dir, map[string]string{"sub/file.txt": "solo"})
	out := filepath.Join(t.TempDir(), "single.mstx")

	_, err := CreateFile(context.Background(), filepath.Join(dir, "sub", "file.txt"), out)
	require.NoError(t, err)
	a, err := Open(out)
	require.NoError(t, err)
	_, ok := a.Entry("file.txt")
	assert.True(t, ok)
	require.NoError(t, a.Close())

	_, err = CreateFile(context.Background(), filepath.Join(dir, "sub", "file.txt"), out, CreateWithEntryName("sub/file.txt"))
	require.NoError(t, err)
	a, err = Open(out)
	require.NoError(t, err)
	defer a.Close()
	got, err := a.ReadFile(context.Background(), "sub/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "solo", string(got))

	_, err = CreateFile(context.Background(), filepath.Join(dir, "sub", "file.txt"), out, CreateWithEntryName("../escape"))
	require.ErrorIs(t, err, ErrInvalidArchive)
}

func TestCreateErrors(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "x.mstx")
	_, err := CreateFile(context.Background(), filepath.Join(t.TempDir(), "missing"), out)
	require.ErrorIs(t, err, ErrNotFound)
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "failed create must not leave output")

	src := t.TempDir()
	testutil.WriteTree(t, src, map[string]string{"1": "a", "2": "b", "3": "c"})
	_, err = CreateFile(context.Background(), src, out, CreateWithMaxFiles(2))
	require.ErrorIs(t, err, ErrTooManyFiles)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = CreateFile(ctx, src, out)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCreateEmptyDirectory(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "empty.mstx")
	res, err := CreateFile(context.Background(), t.TempDir(), out)
	require.NoError(t, err)
	assert.Empty(t, res.Entries)

	a, err := Open(out)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, 0, a.Len())
}

func TestCreateProgress(t *testing.T) {
	t.Parallel()

	var stages []ProgressStage
	_, res := createArchive(t, sampleTree, CreateWithProgress(func(ev ProgressEvent) {
		stages = append(stages, ev.Stage)
	}))
	require.NotEmpty(t, stages)
	assert.Equal(t, StageEnumerating, stages[0])
	assert.Equal(t, StageCompressing, stages[len(stages)-1])
	assert.Len(t, res.Entries, len(sampleTree))
}

func TestEntriesWithPrefix(t *testing.T) {
	t.Parallel()

	path, _ := createArchive(t, sampleTree)
	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	var got []string
	for e := range a.EntriesWithPrefix("a/") {
		got = append(got, e.Path)
	}
	assert.Equal(t, []string{"a/b.txt", "a/c/d.txt"}, got)

	n := 0
	for range a.EntriesWithPrefix("") {
		n++
	}
	assert.Equal(t, len(sampleTree), n)
}

func TestContentManifestDetectsTampering(t *testing.T) {
	t.Parallel()

	path, res := createArchive(t, sampleTree, CreateWithCompression(CompressionNone))
	a, err := Open(path)
	require.NoError(t, err)
	e, ok := a.Entry("a/b.txt")
	require.True(t, ok)

	m, err := a.ContentManifest(context.Background(), nil)
	require.NoError(t, err)
	d, err := m.Digest()
	require.NoError(t, err)
	assert.Equal(t, res.ManifestDigest, d)
	require.NoError(t, a.Close())

	flipByte(t, path, int64(headerSize+e.DataOffset))

	a, err = Open(path)
	require.NoError(t, err, "payload tampering is invisible to Open")
	defer a.Close()

	m, err = a.ContentManifest(context.Background(), nil)
	require.NoError(t, err)
	d, err = m.Digest()
	require.NoError(t, err)
	assert.NotEqual(t, res.ManifestDigest, d)

	_, err = a.ReadFile(context.Background(), "a/b.txt")
	require.ErrorIs(t, err, ErrHashMismatch)
}

func TestContentManifestParallel(t *testing.T) {
	t.Parallel()

	files := make(map[string]string)
	for i := range 40 {
		files[fmt.Sprintf("dir%d/file%d.txt", i%5, i)] = strings.Repeat(fmt.Sprintf("line %d\n", i), 500)
	}
	path, res := createArchive(t, files)

	for _, workers := range []int{-1, 0, 8} {
		a, err := Open(path, OpenWithWorkers(workers))
		require.NoError(t, err)

		var events int
		m, err := a.ContentManifest(context.Background(), func(ev ProgressEvent) {
			events++
			assert.Equal(t, StageValidating, ev.Stage)
		})
		require.NoError(t, err)
		d, err := m.Digest()
		require.NoError(t, err)
		assert.Equal(t, res.ManifestDigest, d, "workers=%d", workers)
		assert.Equal(t, len(files), events)
		require.NoError(t, a.Close())
	}
}

func TestOpenRejectsCorruption(t *testing.T) {
	t.Parallel()

	path, _ := createArchive(t, sampleTree)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	a, err := Open(path)
	require.NoError(t, err)
	manifestOff := int(a.trailer.Manifest.Offset)
	indexOff := int(a.trailer.Index.Offset)
	require.NoError(t, a.Close())

	tests := map[string]func([]byte) []byte{
		"truncated":        func(b []byte) []byte { return b[:len(b)-1] },
		"trailing garbage": func(b []byte) []byte { return append(b, 0) },
		"bad header":       func(b []byte) []byte { b[1] = 'Z'; return b },
		"manifest edited":  func(b []byte) []byte { b[manifestOff+2] ^= 0x20; return b },
		"index truncated":  func(b []byte) []byte { return append(b[:indexOff+4], b[manifestOff:]...) },
		"tiny":             func([]byte) []byte { return []byte("TPLX") },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			p := filepath.Join(t.TempDir(), "bad.mstx")
			require.NoError(t, os.WriteFile(p, mutate(bytes.Clone(data)), 0o600))
			_, err := Open(p)
			require.Error(t, err)
		})
	}

	_, err = Open(filepath.Join(t.TempDir(), "nope.mstx"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAttachSignature(t *testing.T) {
	t.Parallel()

	path, res := createArchive(t, sampleTree)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	block := &signature.Block{
		Algorithm:    signature.AlgEd25519,
		Thumbprint:   "AB",
		Signature:    "c2ln",
		SignedDigest: res.ManifestDigest,
		SignedAt:     time.Now().UTC(),
	}
	require.NoError(t, AttachSignature(path, block))

	a, err := Open(path)
	require.NoError(t, err)
	assert.True(t, a.Signed())
	got, err := a.Signature()
	require.NoError(t, err)
	assert.Equal(t, res.ManifestDigest, got.SignedDigest)
	assert.Equal(t, res.ManifestDigest, a.ManifestDigest())
	prefix := int(a.trailer.Manifest.end())
	require.NoError(t, a.Close())

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before[:prefix], after[:prefix], "signing must not touch content sections")

	block.SignedDigest = digest.FromString("other")
	require.NoError(t, AttachSignature(path, block))
	a, err = Open(path)
	require.NoError(t, err)
	got, err = a.Signature()
	require.NoError(t, err)
	assert.Equal(t, block.SignedDigest, got.SignedDigest)
	require.NoError(t, a.Close())
}

// Not parallel: replaces rename.
func TestAttachSignatureClosesSourceBeforeRename(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("reads /proc/self/fd")
	}
	path, res := createArchive(t, sampleTree)
	target, err := filepath.EvalSymlinks(path)
	require.NoError(t, err)

	var held []string
	orig := rename
	t.Cleanup(func() { rename = orig })
	rename = func(from, to string) error {
		held = fdsOpenOn(t, target)
		return orig(from, to)
	}

	block := &signature.Block{
		Algorithm:    signature.AlgEd25519,
		Thumbprint:   "AB",
		Signature:    "c2ln",
		SignedDigest: res.ManifestDigest,
		SignedAt:     time.Now().UTC(),
	}
	require.NoError(t, AttachSignature(path, block))
	assert.Empty(t, held, "archive still open when replaced")
}

func fdsOpenOn(t *testing.T, path string) []string {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	require.NoError(t, err)
	var fds []string
	for _, e := range entries {
		link, err := os.Readlink(filepath.Join("/proc/self/fd", e.Name()))
		if err == nil && link == path {
			fds = append(fds, e.Name())
		}
	}
	return fds
}

func TestCreateFileInsideInput(t *testing.T) {
	t.Parallel()

	files := map[string]string{"a.txt": "alpha", "b.txt": "bravo"}
	src := t.TempDir()
	testutil.WriteTree(t, src, files)

	for _, out := range []string{filepath.Join(src, "self.mstx"), filepath.Join(src, "sub", "self.mstx")} {
		// The second pack runs with the first archive already in place.
		for range 2 {
			res, err := CreateFile(context.Background(), src, out)
			require.NoError(t, err)

			var paths []string
			for _, e := range res.Entries {
				paths = append(paths, e.Path)
			}
			assert.Equal(t, []string{"a.txt", "b.txt"}, paths, out)
		}
		require.NoError(t, os.Remove(out))
	}
}

func TestCreateWithExclude(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	testutil.WriteTree(t, src, sampleTree)
	var buf bytes.Buffer
	res, err := Create(context.Background(), src, &buf,
		CreateWithExclude(filepath.Join(src, "a", "b.txt"), filepath.Join(src, "missing.txt")))
	require.NoError(t, err)
	assert.Len(t, res.Entries, len(sampleTree)-1)
	for _, e := range res.Entries {
		assert.NotEqual(t, "a/b.txt", e.Path)
	}
}

func TestVerifyData(t *testing.T) {
	t.Parallel()

	path, res := createArchive(t, sampleTree, CreateWithCompression(CompressionNone))
	a, err := Open(path)
	require.NoError(t, err)
	assert.Len(t, a.idx.DataHash, 32)
	require.NoError(t, a.VerifyData(context.Background()))
	require.NoError(t, a.Close())

	e := res.Entries[len(res.Entries)-1]
	flipByte(t, path, int64(headerSize+e.DataOffset))

	a, err = Open(path)
	require.NoError(t, err)
	defer a.Close()
	require.ErrorIs(t, a.VerifyData(context.Background()), ErrHashMismatch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, a.VerifyData(ctx), context.Canceled)
}

func TestUnsignedSignature(t *testing.T) {
	t.Parallel()

	path, _ := createArchive(t, sampleTree)
	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()
	assert.False(t, a.Signed())
	assert.Nil(t, a.SignatureBytes())
	sig, err := a.Signature()
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":            ".",
		"/":           ".",
		"a":           "a",
		"/a/b/":       "a/b",
		"a//b":        "a/b",
		`a\b`:         "a/b",
		"a/../b":      "a/../b",
		"./a":         "./a",
		"///etc//x//": "etc/x",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizePath(in), in)
	}
}

func flipByte(t *testing.T, path string, off int64) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer f.Close()
	b := make([]byte, 1)
	_, err = f.ReadAt(b, off)
	require.NoError(t, err)
	b[0] ^= 0xff
	_, err = f.WriteAt(b, off)
	require.NoError(t, err)
}
