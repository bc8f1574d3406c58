package attest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoneAttestorAlwaysFails(t *testing.T) {
	_, err := (noneAttestor{}).Attest([]byte("nonce"))
	assert.ErrorIs(t, err, ErrNoTEE)
}

func TestAttestRejectsOversizedNonce(t *testing.T) {
	nonce := make([]byte, MaxNonceLen+1)
	_, err := Attest(nonce)
	assert.ErrorIs(t, err, ErrNonceTooLong)
}
