package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSelfSigned(t *testing.T) (certFile, keyFile string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "silo-runners-test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	dir := t.TempDir()
	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certFile, keyFile
}

func TestParseClientAuthType(t *testing.T) {
	tests := []struct {
		in   string
		want tls.ClientAuthType
	}{
		{"", tls.NoClientCert},
		{"none", tls.NoClientCert},
		{"request", tls.RequestClientCert},
		{"verify", tls.VerifyClientCertIfGiven},
		{"require", tls.RequireAndVerifyClientCert},
	}
	for _, tt := range tests {
		got, err := ParseClientAuthType(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseClientAuthType("always")
	assert.Error(t, err)
}

func TestServerCredentials(t *testing.T) {
	certFile, keyFile := writeSelfSigned(t)

	t.Run("NoClientAuth", func(t *testing.T) {
		creds, err := ServerCredentials(ServerConfig{CertFile: certFile, KeyFile: keyFile})
		require.NoError(t, err)
		assert.Equal(t, "tls", creds.Info().SecurityProtocol)
	})

	t.Run("RequireWithCA", func(t *testing.T) {
		_, err := ServerCredentials(ServerConfig{CertFile: certFile, KeyFile: keyFile, CAFile: certFile, ClientAuth: "require"})
		require.NoError(t, err)
	})

	t.Run("VerifyWithoutCA", func(t *testing.T) {
		_, err := ServerCredentials(ServerConfig{CertFile: certFile, KeyFile: keyFile, ClientAuth: "verify"})
		assert.ErrorIs(t, err, ErrCARequired)
	})

	t.Run("RequestNeedsNoCA", func(t *testing.T) {
		_, err := ServerCredentials(ServerConfig{CertFile: certFile, KeyFile: keyFile, ClientAuth: "request"})
		require.NoError(t, err)
	})

	t.Run("MissingCA", func(t *testing.T) {
		_, err := ServerCredentials(ServerConfig{CertFile: certFile, KeyFile: keyFile, CAFile: filepath.Join(t.TempDir(), "missing.pem"), ClientAuth: "require"})
		assert.Error(t, err)
	})

	t.Run("SwappedKeyPair", func(t *testing.T) {
		_, err := ServerCredentials(ServerConfig{CertFile: keyFile, KeyFile: certFile})
		assert.Error(t, err)
	})

	t.Run("BadClientAuth", func(t *testing.T) {
		_, err := ServerCredentials(ServerConfig{CertFile: certFile, KeyFile: keyFile, ClientAuth: "always"})
		assert.ErrorContains(t, err, "invalid client auth type")
	})
}

func TestClientCredentials(t *testing.T) {
	certFile, keyFile := writeSelfSigned(t)

	creds, err := ClientCredentials(certFile, "", "", "localhost")
	require.NoError(t, err)
	assert.Equal(t, "localhost", creds.Info().ServerName)

	_, err = ClientCredentials(certFile, certFile, keyFile, "localhost")
	require.NoError(t, err)

	_, err = ClientCredentials(keyFile, "", "", "localhost")
	assert.ErrorContains(t, err, "no certificates")
}
