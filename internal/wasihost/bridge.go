// Package wasihost wires the guest-callable attestation bridge and the
// WASI syscall shim into a wasmtime Linker.
package wasihost

import (
	"log"

	"github.com/bytecodealliance/wasmtime-go/v27"

	"github.com/wasmkeep/wasmkeep/internal/attest"
)

// maxOutLen mirrors attest.MaxNonceLen's counterpart on the output side:
// the out buffer is never treated as larger than this, regardless of
// what the guest claims.
const maxOutLen = 4096

// RegisterAttestationBridge installs host::attestation_report into
// linker. The guest calls it as
// attestation_report(nonce_ptr, nonce_len, out_ptr, out_len) -> () —
// the host function returns no result, so a written count can only be
// observed via onReport or by the guest re-reading the out buffer. Every
// failure mode — bad bounds, missing memory export, oversized nonce,
// attestor error — is silent: the guest sees nothing written and must
// treat that as "no attestation available", exactly as any other
// failure. A report larger than the out buffer is truncated to outLen
// bytes rather than dropped.
func RegisterAttestationBridge(linker *wasmtime.Linker, attestor attest.Attestor, onReport func(nonceLen, reportLen int)) error {
	return linker.FuncWrap("host", "attestation_report",
		func(caller *wasmtime.Caller, noncePtr, nonceLen, outPtr, outLen int32) {
			written := serveAttestationReport(caller, attestor, noncePtr, nonceLen, outPtr, outLen)
			if written > 0 && onReport != nil {
				onReport(int(nonceLen), int(written))
			}
		},
	)
}

func serveAttestationReport(caller *wasmtime.Caller, attestor attest.Attestor, noncePtr, nonceLen, outPtr, outLen int32) int32 {
	mem := caller.GetExport("memory")
	if mem == nil || mem.Memory() == nil {
		log.Printf("[DEBUG] wasihost: attestation_report: no memory export")
		return 0
	}
	data := mem.Memory().UnsafeData(caller)
	return serveAttestationReportOnMemory(data, attestor, noncePtr, nonceLen, outPtr, outLen)
}

// serveAttestationReportOnMemory holds the bounds-checking and attestor
// logic apart from caller/memory plumbing so it can be exercised directly
// against a plain byte slice.
func serveAttestationReportOnMemory(data []byte, attestor attest.Attestor, noncePtr, nonceLen, outPtr, outLen int32) int32 {
	if nonceLen < 0 || nonceLen > attest.MaxNonceLen || outLen < 0 {
		log.Printf("[DEBUG] wasihost: attestation_report: bad length nonce=%d out=%d", nonceLen, outLen)
		return 0
	}
	if outLen > maxOutLen {
		outLen = maxOutLen
	}

	nonce, ok := readBytes(data, noncePtr, nonceLen)
	if !ok {
		log.Printf("[DEBUG] wasihost: attestation_report: nonce out of bounds")
		return 0
	}

	report, err := attestor.Attest(nonce)
	if err != nil {
		log.Printf("[DEBUG] wasihost: attestation_report: attest failed: %v", err)
		return 0
	}
	if int32(len(report)) > outLen {
		log.Printf("[DEBUG] wasihost: attestation_report: report truncated to out buffer")
		report = report[:outLen]
	}

	if !writeBytes(data, outPtr, report) {
		log.Printf("[DEBUG] wasihost: attestation_report: out buffer out of bounds")
		return 0
	}

	return int32(len(report))
}

func readBytes(mem []byte, ptr, length int32) ([]byte, bool) {
	if ptr < 0 || length < 0 {
		return nil, false
	}
	end := int64(ptr) + int64(length)
	if end > int64(len(mem)) {
		return nil, false
	}
	out := make([]byte, length)
	copy(out, mem[ptr:end])
	return out, true
}

func writeBytes(mem []byte, ptr int32, data []byte) bool {
	if ptr < 0 {
		return false
	}
	end := int64(ptr) + int64(len(data))
	if end > int64(len(mem)) {
		return false
	}
	copy(mem[ptr:end], data)
	return true
}
