package certstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/templatex/internal/testutil"
)

func TestNewCertificateRejectsForeignKey(t *testing.T) {
	t.Parallel()

	a := testutil.NewCert(t, testutil.Ed25519)
	b := testutil.NewCert(t, testutil.Ed25519)

	c, err := newCertificate(a.Cert, nil, b.Key, "test")
	require.ErrorIs(t, err, errKeyMismatch)
	assert.Nil(t, c)

	c, err = newCertificate(a.Cert, nil, a.Key, "test")
	require.NoError(t, err)
	assert.True(t, c.KeyMatches())

	c, err = newCertificate(a.Cert, nil, nil, "test")
	require.NoError(t, err)
	assert.False(t, c.HasPrivateKey())
}
