// Package identity issues the ephemeral keypair and certificate chain a
// workload presents to its peers for the lifetime of one invocation.
package identity

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"
)

var (
	// ErrStewardRejected indicates the steward refused the certificate
	// signing request or returned a malformed response.
	ErrStewardRejected = errors.New("identity: steward rejected certificate request")
)

// Generate creates a fresh ECDSA P-256 keypair and a certificate signing
// request for it. The CSR carries no identifying subject fields beyond the
// common name; the steward (or self-signing path) decides everything else.
func Generate() (crypto.Signer, *x509.CertificateRequest, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("identity: generate key: %w", err)
	}

	template := &x509.CertificateRequest{
		Subject:            pkix.Name{CommonName: "wasmkeep-workload"},
		SignatureAlgorithm: x509.ECDSAWithSHA256,
	}
	der, err := x509.CreateCertificateRequest(rand.Reader, template, priv)
	if err != nil {
		return nil, nil, fmt.Errorf("identity: create csr: %w", err)
	}
	csr, err := x509.ParseCertificateRequest(der)
	if err != nil {
		return nil, nil, fmt.Errorf("identity: parse csr: %w", err)
	}

	log.Printf("[DEBUG] identity: generated ephemeral P-256 keypair")
	return priv, csr, nil
}

// SelfSigned mints a single self-signed leaf certificate valid for the
// lifetime of an invocation, used when no steward is configured.
func SelfSigned(priv crypto.Signer) ([]*x509.Certificate, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("identity: serial: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:                pkix.Name{CommonName: "wasmkeep-workload"},
		NotBefore:              now,
		NotAfter:               now.Add(time.Hour),
		KeyUsage:               x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:            []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid:  true,
		IsCA:                   false,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, priv.Public(), priv)
	if err != nil {
		return nil, fmt.Errorf("identity: self-sign: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("identity: parse self-signed: %w", err)
	}

	log.Printf("[DEBUG] identity: minted self-signed leaf, serial=%s", serial)
	return []*x509.Certificate{leaf}, nil
}
