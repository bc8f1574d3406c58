package descriptors

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
)

// Certificate is the provisioner's view of an issued identity: enough to
// build a tls.Certificate without descriptors depending on the identity
// package's wider surface (steward dialing, CSR construction).
type Certificate struct {
	PrivateKey crypto.Signer
	Chain      []*x509.Certificate
}

// TLS converts the certificate into the form crypto/tls expects.
func (c Certificate) TLS() tls.Certificate {
	raw := make([][]byte, len(c.Chain))
	for i, cert := range c.Chain {
		raw[i] = cert.Raw
	}
	return tls.Certificate{
		Certificate: raw,
		PrivateKey:  c.PrivateKey,
		Leaf:        c.Chain[0],
	}
}
