package wasihost

import (
	"encoding/binary"

	"github.com/wasmkeep/wasmkeep/internal/descriptors"
)

// Errno mirrors the WASI canonical error-code enumeration for the subset
// this shim produces.
type Errno uint16

const (
	ErrnoSuccess Errno = 0
	ErrnoBadf    Errno = 8
	ErrnoFault   Errno = 21
	ErrnoInval   Errno = 28
	ErrnoIO      Errno = 29
	ErrnoNotsup  Errno = 58
)

// Ctx is the shared backing state both the "unstable" and
// "snapshot_preview1" linker modules delegate to: the descriptor table,
// and the args/env pushed once before guest entry. OnBytesWritten and
// OnBytesRead, when set, are invoked after every successful fd_write /
// fd_read with the byte count moved, letting the orchestrator track
// aggregate descriptor traffic without the shim importing it directly.
type Ctx struct {
	Table descriptors.Table
	Args  []string
	Env   []string

	OnBytesWritten func(n int)
	OnBytesRead    func(n int)
}

func errnoToErrorFromBounds(ok bool) Errno {
	if !ok {
		return ErrnoFault
	}
	return ErrnoSuccess
}

// errnoFor maps a descriptor-layer error to its WASI errno, per the
// canonical Error -> Errno table.
func errnoFor(err error) Errno {
	switch {
	case err == nil:
		return ErrnoSuccess
	case err == descriptors.ErrNotSupported:
		return ErrnoNotsup
	default:
		return ErrnoIO
	}
}

func (c *Ctx) fd(idx int32) (descriptors.File, Errno) {
	if idx < 0 || int(idx) >= len(c.Table) {
		return nil, ErrnoBadf
	}
	return c.Table[idx], ErrnoSuccess
}

func putU32(mem []byte, ptr int32, v uint32) bool {
	if ptr < 0 || int64(ptr)+4 > int64(len(mem)) {
		return false
	}
	binary.LittleEndian.PutUint32(mem[ptr:], v)
	return true
}

func putU64(mem []byte, ptr int32, v uint64) bool {
	if ptr < 0 || int64(ptr)+8 > int64(len(mem)) {
		return false
	}
	binary.LittleEndian.PutUint64(mem[ptr:], v)
	return true
}
