// Package security issues and loads the TLS material securing agent and
// CSI-surface gRPC connections, scaled down from the teacher's cluster
// certificate authority (pkg/security) to what a single-cluster MOAC
// deployment needs: one self-signed root, node certificates issued off
// it, on-disk load/save.
package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"time"
)

const (
	caValidity   = 10 * 365 * 24 * time.Hour
	certValidity = 90 * 24 * time.Hour
	rsaKeyBits   = 2048
)

// CertAuthority issues node/client certificates off one in-memory root.
type CertAuthority struct {
	rootCert *x509.Certificate
	rootKey  *rsa.PrivateKey
	rootDER  []byte
}

// NewCertAuthority generates a fresh self-signed root CA.
func NewCertAuthority(commonName string) (*CertAuthority, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate CA key: %w", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(caValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create CA certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse CA certificate: %w", err)
	}
	return &CertAuthority{rootCert: cert, rootKey: key, rootDER: der}, nil
}

// RootCertDER returns the CA certificate in DER form, for distribution to
// peers that need to verify certificates this CA issues.
func (ca *CertAuthority) RootCertDER() []byte { return ca.rootDER }

// IssueCertificate issues a leaf certificate for nodeID, valid for the
// given DNS names/IPs (an agent endpoint or the CSI server's listen
// address).
func (ca *CertAuthority) IssueCertificate(nodeID string, dnsNames []string, ips []net.IP) (*tls.Certificate, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: nodeID},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(certValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:     dnsNames,
		IPAddresses:  ips,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca.rootCert, &key.PublicKey, ca.rootKey)
	if err != nil {
		return nil, fmt.Errorf("create certificate for %s: %w", nodeID, err)
	}
	return &tls.Certificate{Certificate: [][]byte{der, ca.rootDER}, PrivateKey: key}, nil
}
