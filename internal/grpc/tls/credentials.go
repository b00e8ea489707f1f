package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"google.golang.org/grpc/credentials"
)

var ErrCARequired = errors.New("ca_file is required when client certificates are verified")

// ServerConfig describes the health endpoint's TLS. ClientAuth is one of
// none, request, verify or require.
type ServerConfig struct {
	CertFile   string
	KeyFile    string
	CAFile     string
	ClientAuth string
}

// ServerCredentials builds TLS 1.2+ transport credentials for the gRPC server.
func ServerCredentials(cfg ServerConfig) (credentials.TransportCredentials, error) {
	clientAuth, err := ParseClientAuthType(cfg.ClientAuth)
	if err != nil {
		return nil, err
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate: %w", err)
	}

	config := &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   clientAuth,
		MinVersion:   tls.VersionTLS12,
	}

	if verifiesClients(clientAuth) {
		if cfg.CAFile == "" {
			return nil, ErrCARequired
		}
		pool, err := loadCAPool(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		config.ClientCAs = pool
	}

	return credentials.NewTLS(config), nil
}

// ClientCredentials builds credentials for a health probe. certFile and
// keyFile may be empty when the server does not ask for client certificates.
func ClientCredentials(caFile, certFile, keyFile, serverName string) (credentials.TransportCredentials, error) {
	pool, err := loadCAPool(caFile)
	if err != nil {
		return nil, err
	}

	config := &tls.Config{
		RootCAs:    pool,
		ServerName: serverName,
		MinVersion: tls.VersionTLS12,
	}
	if certFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		config.Certificates = []tls.Certificate{cert}
	}

	return credentials.NewTLS(config), nil
}

func ParseClientAuthType(authType string) (tls.ClientAuthType, error) {
	switch authType {
	case "", "none":
		return tls.NoClientCert, nil
	case "request":
		return tls.RequestClientCert, nil
	case "verify":
		return tls.VerifyClientCertIfGiven, nil
	case "require":
		return tls.RequireAndVerifyClientCert, nil
	default:
		return tls.NoClientCert, fmt.Errorf("invalid client auth type: %s (valid: none, request, verify, require)", authType)
	}
}

func verifiesClients(t tls.ClientAuthType) bool {
	return t == tls.VerifyClientCertIfGiven || t == tls.RequireAndVerifyClientCert
}

func loadCAPool(caFile string) (*x509.CertPool, error) {
	ca, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(ca) {
		return nil, fmt.Errorf("no certificates found in %s", caFile)
	}
	return pool, nil
}
