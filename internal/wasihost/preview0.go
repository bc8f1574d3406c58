package wasihost

import "github.com/bytecodealliance/wasmtime-go/v27"

// RegisterPreview0 wires the older "wasi_unstable" snapshot against the
// same Ctx as preview1: every call delegates to the identical
// implementation except the same four calls that always trap. The two
// snapshots differ in module name only, never in behavior, here.
func RegisterPreview0(linker *wasmtime.Linker, ctx *Ctx) error {
	return registerWasiModule(linker, "wasi_unstable", ctx)
}
