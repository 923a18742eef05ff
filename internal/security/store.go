package security

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

// GetCertDir returns the directory certificates for a node are stored
// under, creating it if necessary.
func GetCertDir(baseDir, nodeID string) (string, error) {
	dir := filepath.Join(baseDir, "certs", nodeID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create cert dir %s: %w", dir, err)
	}
	return dir, nil
}

// SaveCertToFile writes a leaf certificate and its private key as PEM
// files under dir.
func SaveCertToFile(dir string, cert *tls.Certificate) error {
	certPath := filepath.Join(dir, "tls.crt")
	keyPath := filepath.Join(dir, "tls.key")

	certOut, err := os.OpenFile(certPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", certPath, err)
	}
	defer certOut.Close()
	for _, der := range cert.Certificate {
		if err := pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: der}); err != nil {
			return fmt.Errorf("encode certificate: %w", err)
		}
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(cert.PrivateKey)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}
	keyOut, err := os.OpenFile(keyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open %s: %w", keyPath, err)
	}
	defer keyOut.Close()
	return pem.Encode(keyOut, &pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
}

// LoadCertFromFile loads a leaf certificate/key pair previously saved by
// SaveCertToFile.
func LoadCertFromFile(dir string) (*tls.Certificate, error) {
	certPath := filepath.Join(dir, "tls.crt")
	keyPath := filepath.Join(dir, "tls.key")
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load keypair from %s: %w", dir, err)
	}
	return &cert, nil
}

// CertExists reports whether a certificate/key pair is present under dir.
func CertExists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "tls.crt"))
	return err == nil
}

// LoadCACertPool reads a PEM-encoded CA certificate and returns a pool
// containing it, for use as a peer verification root.
func LoadCACertPool(caPath string) (*x509.CertPool, error) {
	data, err := os.ReadFile(caPath)
	if err != nil {
		return nil, fmt.Errorf("read CA cert %s: %w", caPath, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("no certificates found in %s", caPath)
	}
	return pool, nil
}

// SaveCACertToFile writes the CA's certificate as a PEM file, for
// distribution to peers that must verify certificates it issues.
func SaveCACertToFile(path string, der []byte) error {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer out.Close()
	return pem.Encode(out, &pem.Block{Type: "CERTIFICATE", Bytes: der})
}
