package security

import (
	"crypto/x509"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueCertificateVerifiesAgainstRoot(t *testing.T) {
	ca, err := NewCertAuthority("moac-test-ca")
	require.NoError(t, err)

	cert, err := ca.IssueCertificate("node-a", []string{"node-a"}, []net.IP{net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	assert.Len(t, cert.Certificate, 2)
	assert.NotNil(t, cert.PrivateKey)

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	root, err := x509.ParseCertificate(ca.RootCertDER())
	require.NoError(t, err)
	roots := x509.NewCertPool()
	roots.AddCert(root)
	_, err = leaf.Verify(x509.VerifyOptions{Roots: roots, DNSName: "node-a"})
	assert.NoError(t, err)
}

func TestSaveAndLoadCertRoundTrip(t *testing.T) {
	ca, err := NewCertAuthority("moac-test-ca")
	require.NoError(t, err)
	cert, err := ca.IssueCertificate("node-a", []string{"node-a"}, nil)
	require.NoError(t, err)

	dir, err := GetCertDir(t.TempDir(), "node-a")
	require.NoError(t, err)
	require.NoError(t, SaveCertToFile(dir, cert))
	assert.True(t, CertExists(dir))

	loaded, err := LoadCertFromFile(dir)
	require.NoError(t, err)
	assert.Equal(t, cert.Certificate[0], loaded.Certificate[0])
}
