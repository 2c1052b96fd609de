package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/templatex"
	"github.com/meigma/templatex/certstore"
	"github.com/meigma/templatex/internal/testutil"
)

type env struct {
	config string
	store  string
	src    string
	dir    string
}

func newEnv(t *testing.T, extraConfig string) env {
	t.Helper()
	dir := t.TempDir()
	e := env{
		config: filepath.Join(dir, "config.yaml"),
		store:  filepath.Join(dir, "user"),
		src:    filepath.Join(dir, "src"),
		dir:    dir,
	}
	testutil.WriteTree(t, e.src, map[string]string{
		"a.txt":     "alpha",
		"sub/b.txt": strings.Repeat("beta ", 40),
	})
	require.NoError(t, os.MkdirAll(e.store, 0o750))
	cfg := "user_store: " + e.store + "\n" +
		"machine_store: " + filepath.Join(dir, "machine") + "\n" +
		"work_dir: " + filepath.Join(dir, "work") + "\n" + extraConfig
	require.NoError(t, os.WriteFile(e.config, []byte(cfg), 0o600))
	return e
}

func (e env) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand(&stdout, &stderr)
	cmd.SetArgs(append([]string{"--config", e.config}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestPackVerifyUnsigned(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "")
	out := filepath.Join(e.dir, "unsigned.mstx")

	stdout, _, err := e.run(t, "pack", e.src, "-o", out)
	require.NoError(t, err)
	assert.Equal(t, out+"\n", stdout)

	stdout, _, err = e.run(t, "verify", out)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, ExitInvalid, exitErr.Code)
	assert.Contains(t, stdout, templatex.ReasonUnsigned)

	_, _, err = e.run(t, "extract", out, filepath.Join(e.dir, "dest"))
	require.ErrorIs(t, err, templatex.ErrInvalidSignature)

	_, _, err = e.run(t, "extract", "--no-verify", out, filepath.Join(e.dir, "dest"))
	require.NoError(t, err)
	assert.Equal(t, 2, testutil.CountFiles(t, filepath.Join(e.dir, "dest")))
}

func TestSignWithThumbprint(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "content_type: templates/v1\n")
	tc := testutil.NewCert(t, testutil.ECDSA)
	tc.WritePEM(t, e.store, "signer.pem", true)
	tp := certstore.Thumbprint(tc.Cert)

	stdout, _, err := e.run(t, "sign", e.src, "--thumbprint", tp)
	require.NoError(t, err)
	out := strings.TrimSpace(stdout)
	assert.Equal(t, filepath.Join(e.dir, "work"), filepath.Dir(out))

	stdout, _, err = e.run(t, "verify", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "OK: signed by "+tp)

	stdout, _, err = e.run(t, "inspect", "--json", out)
	require.NoError(t, err)
	var info templatex.Info
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, "templates/v1", info.ContentType)
	assert.Len(t, info.Entries, 2)

	dest := filepath.Join(e.dir, "dest")
	_, _, err = e.run(t, "extract", out, dest)
	require.NoError(t, err)
	assert.Equal(t, "alpha", testutil.ReadTree(t, dest)["a.txt"])
}

func TestSignWithCredentialFile(t *testing.T) {
	e := newEnv(t, "")
	tc := testutil.NewCert(t, testutil.RSA)
	pfx := tc.WritePKCS12(t, e.dir, "signer.pfx", "s3cret")
	out := filepath.Join(e.dir, "signed.mstx")

	t.Setenv("TEMPLATEX_TEST_PASS", "wrong")
	_, _, err := e.run(t, "sign", e.src, "-o", out, "--cert", pfx, "--pass-env", "TEMPLATEX_TEST_PASS")
	require.ErrorIs(t, err, templatex.ErrInvalidCredential)

	t.Setenv("TEMPLATEX_TEST_PASS", "s3cret")
	_, _, err = e.run(t, "sign", e.src, "-o", out, "--cert", pfx, "--pass-env", "TEMPLATEX_TEST_PASS")
	require.NoError(t, err)

	stdout, _, err := e.run(t, "inspect", "--entries", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, certstore.Thumbprint(tc.Cert))
	assert.Contains(t, stdout, "sub/b.txt")
	assert.Regexp(t, `data:\s+intact`, stdout)
}

func TestSignRequiresCertificateSource(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "")

	_, _, err := e.run(t, "sign", e.src)
	require.Error(t, err)

	_, _, err = e.run(t, "sign", e.src, "--thumbprint", strings.Repeat("AB", 20))
	require.ErrorIs(t, err, templatex.ErrSignCertNotFound)
}

func TestCompressionConfig(t *testing.T) {
	t.Parallel()

	e := newEnv(t, "compression: none\n")
	out := filepath.Join(e.dir, "plain.mstx")
	_, _, err := e.run(t, "pack", e.src, "-o", out)
	require.NoError(t, err)
	info, err := templatex.Inspect(out)
	require.NoError(t, err)
	for _, entry := range info.Entries {
		assert.Equal(t, templatex.CompressionNone, entry.Compression)
	}

	// Flags win over the config file.
	_, _, err = e.run(t, "--compression", "bogus", "pack", e.src, "-o", out)
	require.ErrorContains(t, err, "unknown compression")
}

func TestCertCommand(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "")
	tc := testutil.NewCert(t, testutil.Ed25519, testutil.WithCommonName("Template Signer"))
	tc.WritePEM(t, e.store, "signer.pem", false)

	stdout, _, err := e.run(t, "cert", strings.ToLower(certstore.Thumbprint(tc.Cert)))
	require.NoError(t, err)
	assert.Contains(t, stdout, "Template Signer")
	assert.Contains(t, stdout, "private key: false")

	_, _, err = e.run(t, "cert", "00")
	require.ErrorIs(t, err, templatex.ErrSignCertNotFound)
}

func TestMissingConfigFile(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "")
	e.config = filepath.Join(e.dir, "missing.yaml")

	_, _, err := e.run(t, "pack", e.src)
	require.ErrorContains(t, err, "read config")
}

func TestExitCode(t *testing.T) {
	t.Parallel()
	var stderr bytes.Buffer

	assert.Equal(t, 0, exitCode(nil, &stderr))
	assert.Equal(t, ExitInvalid, exitCode(&ExitError{Code: ExitInvalid}, &stderr))
	assert.Empty(t, stderr.String())

	assert.Equal(t, ExitFailure, exitCode(errors.New("boom"), &stderr))
	assert.Equal(t, "Error: boom\n", stderr.String())
}
