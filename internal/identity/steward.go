package identity

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"

	"golang.org/x/crypto/hkdf"

	"github.com/wasmkeep/wasmkeep/internal/attest"
)

// hkdfInfo binds an HKDF expansion run to this exact use: nonces used to
// request a certificate must never be reusable for any other purpose.
const hkdfInfo = "wasmkeep-steward-attest"

type stewardRequest struct {
	CSR    string `json:"csr"`
	Report string `json:"report"`
}

type stewardResponse struct {
	Chain []string `json:"chain"`
}

// Steward requests a certificate chain for csr from url, proving platform
// identity via an attestation report whose nonce is cryptographically
// bound to the CSR. Any failure is fatal; network, non-2xx and
// malformed-chain failures are wrapped in ErrStewardRejected, while
// attestation and request-construction errors are returned as wrapped
// errors of their own.
func Steward(ctx context.Context, stewardURL *url.URL, csr *x509.CertificateRequest, attestor attest.Attestor) ([]*x509.Certificate, error) {
	nonce := csrNonce(csr)

	report, err := attestor.Attest(nonce)
	if err != nil {
		return nil, fmt.Errorf("identity: attest for steward request: %w", err)
	}

	body, err := json.Marshal(stewardRequest{
		CSR:    base64.StdEncoding.EncodeToString(csr.Raw),
		Report: base64.StdEncoding.EncodeToString(report),
	})
	if err != nil {
		return nil, fmt.Errorf("identity: encode steward request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, stewardURL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("identity: build steward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.Printf("[DEBUG] identity: requesting certificate chain from %s", stewardURL.Host)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStewardRejected, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrStewardRejected, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: status %d", ErrStewardRejected, resp.StatusCode)
	}

	var parsed stewardResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrStewardRejected, err)
	}
	if len(parsed.Chain) == 0 {
		return nil, fmt.Errorf("%w: empty chain", ErrStewardRejected)
	}

	chain := make([]*x509.Certificate, 0, len(parsed.Chain))
	for i, encoded := range parsed.Chain {
		der, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: chain[%d] not base64: %v", ErrStewardRejected, i, err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("%w: chain[%d] not a valid certificate: %v", ErrStewardRejected, i, err)
		}
		chain = append(chain, cert)
	}

	log.Printf("[DEBUG] identity: received %d-certificate chain", len(chain))
	return chain, nil
}

// csrNonce derives an attestation nonce bound to csr so a report produced
// for one CSR can never be replayed against another.
func csrNonce(csr *x509.CertificateRequest) []byte {
	digest := sha256.Sum256(csr.Raw)
	r := hkdf.New(sha256.New, digest[:], nil, []byte(hkdfInfo))
	nonce := make([]byte, attest.MaxNonceLen)
	if _, err := io.ReadFull(r, nonce); err != nil {
		panic("identity: hkdf expand failed: " + err.Error())
	}
	return nonce
}
