package security

import (
	"crypto/tls"
	"crypto/x509"
)

// ServerTLSConfig builds a tls.Config for the agent or CSI gRPC server.
// When caPool is non-nil, client certificates are required and verified
// against it (mTLS); otherwise the server presents cert without
// demanding one back.
func ServerTLSConfig(cert *tls.Certificate, caPool *x509.CertPool) *tls.Config {
	cfg := &tls.Config{
		Certificates: []tls.Certificate{*cert},
		MinVersion:   tls.VersionTLS12,
	}
	if caPool != nil {
		cfg.ClientCAs = caPool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg
}

// ClientTLSConfig builds a tls.Config for dialing an agent or CSI
// server. cert is optional and only needed when the peer requires mTLS.
func ClientTLSConfig(cert *tls.Certificate, caPool *x509.CertPool, serverName string) *tls.Config {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: serverName,
	}
	if caPool != nil {
		cfg.RootCAs = caPool
	}
	if cert != nil {
		cfg.Certificates = []tls.Certificate{*cert}
	}
	return cfg
}
