// Package attest detects the host's confidential-computing backend and
// produces attestation reports binding a caller-supplied nonce to the
// platform's measurements.
package attest

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
)

// MaxNonceLen is the largest nonce a Report call accepts. It mirrors the
// guest-facing host call's buffer contract in the wasihost bridge.
const MaxNonceLen = 64

var (
	// ErrNoTEE indicates no confidential-computing backend is available on
	// this host. Recoverable in the guest-facing attestation bridge, which
	// writes no report; the steward identity path treats it as fatal.
	ErrNoTEE = errors.New("attest: no confidential-computing backend present")
	// ErrNonceTooLong indicates a nonce exceeding MaxNonceLen was supplied.
	ErrNonceTooLong = errors.New("attest: nonce exceeds maximum length")
	// ErrPlatform wraps a backend-specific failure (TPM I/O, quote, etc).
	ErrPlatform = errors.New("attest: platform backend error")
)

// Report is an opaque, backend-specific attestation structure. Its only
// contract is that it was produced over the nonce passed to Attest.
type Report []byte

// Attestor produces attestation reports for this host.
type Attestor interface {
	Attest(nonce []byte) (Report, error)
}

var (
	platformOnce sync.Once
	platform     Attestor
)

// Platform returns the process-wide attestor, detecting the backend on
// first call and caching the result for the lifetime of the process.
func Platform() Attestor {
	platformOnce.Do(func() {
		platform = detect()
	})
	return platform
}

func detect() Attestor {
	dev := tpmDevicePath()
	if _, err := os.Stat(dev); err != nil {
		log.Printf("[DEBUG] attest: no TPM device at %s, falling back to no_tee", dev)
		return noneAttestor{}
	}
	log.Printf("[DEBUG] attest: using TPM device %s", dev)
	return &tpmAttestor{device: dev}
}

func tpmDevicePath() string {
	if v := os.Getenv("WASMKEEP_TPM_DEVICE"); v != "" {
		return v
	}
	return "/dev/tpmrm0"
}

// Attest produces a report over nonce using the process-wide platform
// backend. It is a convenience wrapper around Platform().Attest.
func Attest(nonce []byte) (Report, error) {
	if len(nonce) > MaxNonceLen {
		return nil, ErrNonceTooLong
	}
	return Platform().Attest(nonce)
}

// noneAttestor is used whenever no TEE backend is detected.
type noneAttestor struct{}

func (noneAttestor) Attest(nonce []byte) (Report, error) {
	return nil, ErrNoTEE
}

func platformErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPlatform, fmt.Sprintf(format, args...))
}
