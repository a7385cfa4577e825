// Package mtls authenticates clients by the TLS certificate they present.
package mtls

import (
	"context"
	"crypto/x509"
	"fmt"
	"net/http"
	"time"

	"authflow/internal/auth"
	"authflow/internal/observability/logging"
	"authflow/internal/tls"
)

// Name is the registry name of the strategy
const Name = "mtls"

// OptionAllowDNSName lets a certificate without Common Name use its first DNS name
const OptionAllowDNSName = "allowDNSName"

// Config holds mTLS strategy configuration
type Config struct {
	// CAPaths is a list of paths to CA certificates for client verification
	CAPaths []string

	// Roots is used instead of CAPaths when set, so the listener and the
	// strategy share one pool
	Roots *x509.CertPool

	AllowDNSName bool
}

// Strategy implements auth.Strategy for client certificates
type Strategy struct {
	roots    *x509.CertPool
	defaults auth.Options
	logger   *logging.Logger
	now      func() time.Time
}

// New creates an mTLS strategy
func New(config Config, logger *logging.Logger) (*Strategy, error) {
	roots := config.Roots
	if roots == nil {
		if len(config.CAPaths) == 0 {
			return nil, fmt.Errorf("mTLS strategy requires client CA certificates")
		}
		pool, err := tls.LoadCertPool(config.CAPaths)
		if err != nil {
			return nil, err
		}
		roots = pool
	}

	return &Strategy{
		roots:    roots,
		defaults: auth.Options{OptionAllowDNSName: config.AllowDNSName},
		logger:   logger.WithModule("auth.mtls"),
		now:      time.Now,
	}, nil
}

// Name implements auth.Strategy
func (s *Strategy) Name() string {
	return Name
}

// DefaultOptions implements auth.Strategy
func (s *Strategy) DefaultOptions() auth.Options {
	return s.defaults
}

// Authenticate implements auth.Strategy
func (s *Strategy) Authenticate(ctx context.Context, r *http.Request, opts auth.Options) (*auth.Identity, error) {
	if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
		return nil, nil
	}

	logger := logging.FromContextOr(ctx, s.logger)
	leaf := r.TLS.PeerCertificates[0]

	if err := tls.VerifyClientChain(r.TLS.PeerCertificates, s.roots, s.now()); err != nil {
		logger.Info("Client certificate rejected", logging.Err(err))
		return nil, auth.InvalidCredentials("Client certificate verification failed", err)
	}

	subject, err := tls.ExtractSubject(leaf, opts.Bool(OptionAllowDNSName, false))
	if err != nil {
		logger.Info("Client certificate has no usable subject", logging.Err(err))
		return nil, auth.InvalidCredentials("Client certificate has no subject", err)
	}

	logger.Debug("Client certificate verified", "subject", subject)
	return &auth.Identity{
		Subject:  subject,
		Provider: Name,
		Attributes: map[string]interface{}{
			"issuer":    leaf.Issuer.CommonName,
			"serial":    leaf.SerialNumber.String(),
			"dns_names": leaf.DNSNames,
		},
	}, nil
}

var _ auth.Strategy = (*Strategy)(nil)
