package identity

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateProducesParsableCSR(t *testing.T) {
	priv, csr, err := Generate()
	require.NoError(t, err)
	require.NotNil(t, priv)
	require.NotNil(t, csr)

	assert.NoError(t, csr.CheckSignature())
	assert.Equal(t, "wasmkeep-workload", csr.Subject.CommonName)
}

func TestSelfSignedLeafMatchesSigningKey(t *testing.T) {
	priv, _, err := Generate()
	require.NoError(t, err)

	chain, err := SelfSigned(priv)
	require.NoError(t, err)
	require.Len(t, chain, 1)

	leaf := chain[0]
	assert.False(t, leaf.IsCA)
	assert.True(t, leaf.NotAfter.After(leaf.NotBefore))
	assert.Equal(t, priv.Public(), leaf.PublicKey)
}

func TestCSRNonceIsDeterministicAndBounded(t *testing.T) {
	_, csr, err := Generate()
	require.NoError(t, err)

	n1 := csrNonce(csr)
	n2 := csrNonce(csr)
	assert.Equal(t, n1, n2, "HKDF expansion over the same CSR digest must be deterministic")
	assert.LessOrEqual(t, len(n1), 64)

	_, otherCSR, err := Generate()
	require.NoError(t, err)
	n3 := csrNonce(otherCSR)
	assert.NotEqual(t, n1, n3, "different CSRs must bind to different nonces")

	// sanity: the nonce is derived from the CSR digest through HKDF, not
	// the raw digest itself.
	digest := sha256.Sum256(csr.Raw)
	assert.NotEqual(t, digest[:], n1)
}
