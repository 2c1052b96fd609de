package archive

import (
	"bytes"
	"context"
	"io/fs"
	"testing"
	"testing/fstest"
	"text/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFS(t *testing.T) {
	t.Parallel()

	path, _ := createArchive(t, sampleTree)
	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, fstest.TestFS(a.FS(),
		"a.txt", "a/b.txt", "a/c/d.txt", "Locations/Info.txt", "empty.txt", "image.png"))
}

func TestFSReadDir(t *testing.T) {
	t.Parallel()

	path, _ := createArchive(t, sampleTree)
	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()
	fsys := a.FS()

	entries, err := fs.ReadDir(fsys, "a")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"b.txt", "c"}, names)
	assert.True(t, entries[1].IsDir())

	_, err = fs.ReadDir(fsys, "missing")
	require.ErrorIs(t, err, fs.ErrNotExist)
	_, err = fs.ReadDir(fsys, "a.txt")
	require.ErrorIs(t, err, fs.ErrInvalid)

	info, err := fs.Stat(fsys, "a/c/d.txt")
	require.NoError(t, err)
	assert.EqualValues(t, len(sampleTree["a/c/d.txt"]), info.Size())
}

func TestFSParseTemplates(t *testing.T) {
	t.Parallel()

	path, _ := createArchive(t, map[string]string{
		"templates/base.tmpl": `{{define "base"}}Hello, {{template "name" .}}!{{end}}`,
		"templates/name.tmpl": `{{define "name"}}{{.}}{{end}}`,
	})
	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	tmpl, err := template.ParseFS(a.FS(), "templates/*.tmpl")
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, tmpl.ExecuteTemplate(&out, "base", "templatex"))
	assert.Equal(t, "Hello, templatex!", out.String())
}

func TestFSDetectsTampering(t *testing.T) {
	t.Parallel()

	path, _ := createArchive(t, sampleTree, CreateWithCompression(CompressionNone))
	a, err := Open(path)
	require.NoError(t, err)
	e, ok := a.Entry("a.txt")
	require.True(t, ok)
	require.NoError(t, a.Close())

	flipByte(t, path, int64(headerSize+e.DataOffset))

	a, err = Open(path)
	require.NoError(t, err)
	defer a.Close()

	_, err = fs.ReadFile(a.FS(), "a.txt")
	require.ErrorIs(t, err, ErrHashMismatch)
	_, err = a.FS().Open("a.txt")
	require.ErrorIs(t, err, ErrHashMismatch)

	data, err := a.ReadFile(context.Background(), "a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "bravo", string(data))
}
