// Package tls builds the listener TLS configuration and verifies client certificates.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"authflow/internal/observability/logging"
)

// Config holds the listener TLS settings
type Config struct {
	// Logger is the logger to use
	Logger *logging.Logger

	// CertPath is the path to the server certificate
	CertPath string

	// KeyPath is the path to the server key
	KeyPath string

	// ClientCAPaths are CA certificates trusted for client certificates
	ClientCAPaths []string
}

// LoadCertPool reads PEM certificates from paths into a new pool
func LoadCertPool(paths []string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %s: %w", path, err)
		}
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("failed to parse CA file: %s", path)
		}
	}
	return pool, nil
}

// ServerConfig creates the listener configuration. When client CAs are set,
// client certificates are requested but not required so that operations can
// choose other strategies; the returned pool is the one the mtls strategy
// verifies against.
func (c *Config) ServerConfig() (*tls.Config, *x509.CertPool, error) {
	c.Logger.Debug("Initializing TLS configuration")

	cert, err := tls.LoadX509KeyPair(c.CertPath, c.KeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load server certificate: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if len(c.ClientCAPaths) == 0 {
		c.Logger.Info("TLS configured without client certificates")
		return tlsConfig, nil, nil
	}

	pool, err := LoadCertPool(c.ClientCAPaths)
	if err != nil {
		return nil, nil, err
	}
	tlsConfig.ClientCAs = pool
	tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven

	c.Logger.Info("TLS configured with client certificate verification", "client_cas", len(c.ClientCAPaths))
	return tlsConfig, pool, nil
}
