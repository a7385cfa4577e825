package tls

import (
	"crypto/x509"
	"fmt"
	"time"
)

// VerifyClientChain verifies the leaf of a presented chain for client
// authentication. Certificates after the leaf are used as intermediates.
func VerifyClientChain(chain []*x509.Certificate, roots *x509.CertPool, now time.Time) error {
	if len(chain) == 0 {
		return fmt.Errorf("no certificates provided")
	}

	intermediates := x509.NewCertPool()
	for _, cert := range chain[1:] {
		intermediates.AddCert(cert)
	}

	opts := x509.VerifyOptions{
		Roots:         roots,
		CurrentTime:   now,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	if _, err := chain[0].Verify(opts); err != nil {
		return fmt.Errorf("client certificate verification failed: %w", err)
	}
	return nil
}

// ExtractSubject returns the certificate's Common Name, or its first DNS name
// when allowDNSName is set and the Common Name is empty
func ExtractSubject(cert *x509.Certificate, allowDNSName bool) (string, error) {
	if cn := cert.Subject.CommonName; cn != "" {
		return cn, nil
	}
	if allowDNSName && len(cert.DNSNames) > 0 {
		return cert.DNSNames[0], nil
	}
	return "", fmt.Errorf("certificate has no Common Name or valid DNS names")
}
