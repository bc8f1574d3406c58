package wasihost

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wasmkeep/wasmkeep/internal/attest"
)

// stubAttestor lets each test control exactly what Attest returns without
// touching a real TPM device.
type stubAttestor struct {
	report []byte
	err    error
}

func (s stubAttestor) Attest(nonce []byte) (attest.Report, error) {
	return s.report, s.err
}

func TestServeAttestationReportRejectsOversizedNonce(t *testing.T) {
	mem := make([]byte, 1024)
	n := serveAttestationReportOnMemory(mem, stubAttestor{report: []byte("report")}, 0, 65, 100, 900)
	assert.Equal(t, int32(0), n, "a nonce over the maximum length must yield a silent zero, not an error")
}

func TestServeAttestationReportRejectsOutOfBoundsNonce(t *testing.T) {
	mem := make([]byte, 32)
	n := serveAttestationReportOnMemory(mem, stubAttestor{report: []byte("x")}, 16, 32, 0, 16)
	assert.Equal(t, int32(0), n, "a nonce range exceeding memory bounds must be silent")
}

func TestServeAttestationReportTruncatesOversizedReport(t *testing.T) {
	mem := make([]byte, 128)
	big := make([]byte, 200)
	for i := range big {
		big[i] = byte(i)
	}
	n := serveAttestationReportOnMemory(mem, stubAttestor{report: big}, 0, 8, 16, 32)
	assert.Equal(t, int32(32), n, "a report too large for the out buffer is truncated to its length")
	assert.Equal(t, big[:32], mem[16:16+32])
}

func TestServeAttestationReportSilentOnAttestorFailure(t *testing.T) {
	mem := make([]byte, 128)
	n := serveAttestationReportOnMemory(mem, stubAttestor{err: errors.New("no tee")}, 0, 8, 16, 64)
	assert.Equal(t, int32(0), n)
}

func TestServeAttestationReportWritesReportOnSuccess(t *testing.T) {
	mem := make([]byte, 128)
	report := []byte("attested-bytes")
	n := serveAttestationReportOnMemory(mem, stubAttestor{report: report}, 0, 8, 16, 64)
	assert.Equal(t, int32(len(report)), n)
	assert.Equal(t, report, mem[16:16+len(report)])
}
