package config

import (
	"crypto/tls"
	"crypto/x509"
	"strings"

	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/status"
)

func (t TLSConfig) keyPair() (tls.Certificate, *x509.CertPool, error) {
	if strings.TrimSpace(t.Key) == "" || strings.TrimSpace(t.Cert) == "" || strings.TrimSpace(t.CA) == "" {
		return tls.Certificate{}, nil, status.FailedPreconditionErrorf(
			"missing TLS material; require %s, %s, %s", EnvTLSKey, EnvTLSCert, EnvCATLSCert)
	}
	cert, err := tls.X509KeyPair([]byte(t.Cert), []byte(t.Key))
	if err != nil {
		return tls.Certificate{}, nil, status.InvalidArgumentErrorf("failed to load key pair: %s", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM([]byte(t.CA)) {
		return tls.Certificate{}, nil, status.InvalidArgumentErrorf("failed to parse CA certificate")
	}
	return cert, pool, nil
}

// ServerTLS requires and verifies client certificates signed by the CA.
func (t TLSConfig) ServerTLS() (*tls.Config, error) {
	cert, pool, err := t.keyPair()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

func (t TLSConfig) ClientTLS() (*tls.Config, error) {
	cert, pool, err := t.keyPair()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS13,
	}, nil
}
