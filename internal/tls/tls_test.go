package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	standardtls "crypto/tls"
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSelfSignedCert(t *testing.T) {
	t.Parallel()

	cert, err := GenerateSelfSignedCert()
	require.NoError(t, err)
	require.NotNil(t, cert)

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)

	assert.Equal(t, "localhost", leaf.Subject.CommonName)
	assert.Contains(t, leaf.DNSNames, "localhost")

	ips := make([]string, 0, len(leaf.IPAddresses))
	for _, ip := range leaf.IPAddresses {
		ips = append(ips, ip.String())
	}
	assert.Contains(t, ips, "127.0.0.1")

	// approximately 1 year
	validDuration := leaf.NotAfter.Sub(leaf.NotBefore)
	assert.InDelta(t, float64(365*24*time.Hour), float64(validDuration), float64(time.Hour))

	ecKey, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	require.True(t, ok, "public key is not ECDSA")
	assert.Equal(t, elliptic.P256(), ecKey.Curve)

	assert.Equal(t, leaf.Subject.CommonName, leaf.Issuer.CommonName)
}

func TestClientConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := ClientConfig(ClientOptions{ServerName: "smtp.example.com"})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com", cfg.ServerName)
	assert.Equal(t, uint16(standardtls.VersionTLS12), cfg.MinVersion)
	assert.False(t, cfg.InsecureSkipVerify)
	assert.Nil(t, cfg.RootCAs)
	assert.Empty(t, cfg.Certificates)
}

func TestClientConfig_CAFile(t *testing.T) {
	t.Parallel()

	cert, err := GenerateSelfSignedCert()
	require.NoError(t, err)

	caFile := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(caFile, CertPEM(cert), 0o600))

	cfg, err := ClientConfig(ClientOptions{ServerName: "localhost", CAFile: caFile})
	require.NoError(t, err)
	require.NotNil(t, cfg.RootCAs)

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)

	_, err = leaf.Verify(x509.VerifyOptions{DNSName: "localhost", Roots: cfg.RootCAs})
	assert.NoError(t, err)
}

func TestClientConfig_CAFileWithoutCertificates(t *testing.T) {
	t.Parallel()

	caFile := filepath.Join(t.TempDir(), "empty.pem")
	require.NoError(t, os.WriteFile(caFile, []byte("not a certificate"), 0o600))

	_, err := ClientConfig(ClientOptions{CAFile: caFile})
	assert.Error(t, err)
}

func TestClientConfig_FileNotFound(t *testing.T) {
	t.Parallel()

	_, err := ClientConfig(ClientOptions{CAFile: "/nonexistent/ca.pem"})
	assert.Error(t, err)

	_, err = ClientConfig(ClientOptions{CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"})
	assert.Error(t, err)
}

func TestClientConfig_ClientCertificate(t *testing.T) {
	t.Parallel()

	cert, err := GenerateSelfSignedCert()
	require.NoError(t, err)
	keyPEM, err := KeyPEM(cert)
	require.NoError(t, err)

	dir := t.TempDir()
	certFile := filepath.Join(dir, "client.pem")
	keyFile := filepath.Join(dir, "client.key")
	require.NoError(t, os.WriteFile(certFile, CertPEM(cert), 0o600))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0o600))

	cfg, err := ClientConfig(ClientOptions{ServerName: "localhost", CertFile: certFile, KeyFile: keyFile})
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)
	assert.Equal(t, cert.Certificate[0], cfg.Certificates[0].Certificate[0])

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Contains(t, leaf.ExtKeyUsage, x509.ExtKeyUsageClientAuth)
}

func TestKeyPEM_NoKey(t *testing.T) {
	t.Parallel()

	_, err := KeyPEM(nil)
	assert.Error(t, err)
	_, err = KeyPEM(&standardtls.Certificate{})
	assert.Error(t, err)
}

func TestCertPEM_Nil(t *testing.T) {
	t.Parallel()

	assert.Nil(t, CertPEM(nil))
	assert.Nil(t, CertPEM(&standardtls.Certificate{}))
}
