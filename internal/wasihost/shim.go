package wasihost

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/bytecodealliance/wasmtime-go/v27"
)

// ExitError is panicked by proc_exit and recovered by the orchestrator,
// which treats it the same way the original downcasts a sandbox trap's
// exit status: code 0 is success, anything else is a fatal error.
type ExitError struct{ Code int32 }

func (e ExitError) Error() string { return fmt.Sprintf("proc_exit(%d)", e.Code) }

func memoryOf(caller *wasmtime.Caller) ([]byte, bool) {
	mem := caller.GetExport("memory")
	if mem == nil || mem.Memory() == nil {
		return nil, false
	}
	return mem.Memory().UnsafeData(caller), true
}

// iovec is the (ptr, len) pair WASI uses for scatter/gather I/O.
type iovec struct {
	ptr int32
	len int32
}

func readIovecs(mem []byte, ptr, count int32) ([]iovec, bool) {
	iovecs := make([]iovec, 0, count)
	for i := int32(0); i < count; i++ {
		off := ptr + i*8
		if off < 0 || int64(off)+8 > int64(len(mem)) {
			return nil, false
		}
		iovecs = append(iovecs, iovec{
			ptr: int32(binary.LittleEndian.Uint32(mem[off:])),
			len: int32(binary.LittleEndian.Uint32(mem[off+4:])),
		})
	}
	return iovecs, true
}

func sliceOf(mem []byte, iovecs []iovec) ([][]byte, bool) {
	bufs := make([][]byte, 0, len(iovecs))
	for _, v := range iovecs {
		if v.ptr < 0 || v.len < 0 || int64(v.ptr)+int64(v.len) > int64(len(mem)) {
			return nil, false
		}
		bufs = append(bufs, mem[v.ptr:v.ptr+v.len])
	}
	return bufs, true
}

func fdWrite(ctx *Ctx, caller *wasmtime.Caller, fdArg, iovsPtr, iovsLen, nwrittenPtr int32) int32 {
	mem, ok := memoryOf(caller)
	if !ok {
		return int32(ErrnoFault)
	}
	f, errno := ctx.fd(fdArg)
	if errno != ErrnoSuccess {
		return int32(errno)
	}
	vecs, ok := readIovecs(mem, iovsPtr, iovsLen)
	if !ok {
		return int32(ErrnoFault)
	}
	bufs, ok := sliceOf(mem, vecs)
	if !ok {
		return int32(ErrnoFault)
	}
	n, err := f.WriteVectored(bufs)
	if err != nil {
		return int32(errnoFor(err))
	}
	if errno := errnoToErrorFromBounds(putU32(mem, nwrittenPtr, uint32(n))); errno != ErrnoSuccess {
		return int32(errno)
	}
	if ctx.OnBytesWritten != nil {
		ctx.OnBytesWritten(n)
	}
	return int32(ErrnoSuccess)
}

func fdRead(ctx *Ctx, caller *wasmtime.Caller, fdArg, iovsPtr, iovsLen, nreadPtr int32) int32 {
	mem, ok := memoryOf(caller)
	if !ok {
		return int32(ErrnoFault)
	}
	f, errno := ctx.fd(fdArg)
	if errno != ErrnoSuccess {
		return int32(errno)
	}
	vecs, ok := readIovecs(mem, iovsPtr, iovsLen)
	if !ok {
		return int32(ErrnoFault)
	}
	bufs, ok := sliceOf(mem, vecs)
	if !ok {
		return int32(ErrnoFault)
	}
	n, err := f.ReadVectored(bufs)
	if err != nil {
		return int32(errnoFor(err))
	}
	if errno := errnoToErrorFromBounds(putU32(mem, nreadPtr, uint32(n))); errno != ErrnoSuccess {
		return int32(errno)
	}
	if ctx.OnBytesRead != nil {
		ctx.OnBytesRead(n)
	}
	return int32(ErrnoSuccess)
}

func fdClose(ctx *Ctx, fdArg int32) int32 {
	f, errno := ctx.fd(fdArg)
	if errno != ErrnoSuccess {
		return int32(errno)
	}
	if err := f.Close(); err != nil {
		return int32(errnoFor(err))
	}
	return int32(ErrnoSuccess)
}

func fdSeek(ctx *Ctx, caller *wasmtime.Caller, fdArg int32, offset int64, whence int32, newOffsetPtr int32) int32 {
	mem, ok := memoryOf(caller)
	if !ok {
		return int32(ErrnoFault)
	}
	f, errno := ctx.fd(fdArg)
	if errno != ErrnoSuccess {
		return int32(errno)
	}
	pos, err := f.Seek(offset, int(whence))
	if err != nil {
		return int32(errnoFor(err))
	}
	if !putU64(mem, newOffsetPtr, uint64(pos)) {
		return int32(ErrnoFault)
	}
	return int32(ErrnoSuccess)
}

func fdFdstatGet(ctx *Ctx, caller *wasmtime.Caller, fdArg, statPtr int32) int32 {
	mem, ok := memoryOf(caller)
	if !ok {
		return int32(ErrnoFault)
	}
	f, errno := ctx.fd(fdArg)
	if errno != ErrnoSuccess {
		return int32(errno)
	}
	st, err := f.Stat()
	if err != nil {
		return int32(errnoFor(err))
	}
	if statPtr < 0 || int64(statPtr)+24 > int64(len(mem)) {
		return int32(ErrnoFault)
	}
	mem[statPtr] = byte(st.Filetype)
	binary.LittleEndian.PutUint16(mem[statPtr+2:], f.FdflagsGet())
	binary.LittleEndian.PutUint64(mem[statPtr+8:], ^uint64(0))
	binary.LittleEndian.PutUint64(mem[statPtr+16:], ^uint64(0))
	return int32(ErrnoSuccess)
}

func argsSizesGet(ctx *Ctx, caller *wasmtime.Caller, argcPtr, bufSizePtr int32) int32 {
	mem, ok := memoryOf(caller)
	if !ok {
		return int32(ErrnoFault)
	}
	size := 0
	for _, a := range ctx.Args {
		size += len(a) + 1
	}
	if !putU32(mem, argcPtr, uint32(len(ctx.Args))) || !putU32(mem, bufSizePtr, uint32(size)) {
		return int32(ErrnoFault)
	}
	return int32(ErrnoSuccess)
}

func argsGet(ctx *Ctx, caller *wasmtime.Caller, argvPtr, argvBufPtr int32) int32 {
	return writeStringTable(caller, ctx.Args, argvPtr, argvBufPtr)
}

func environSizesGet(ctx *Ctx, caller *wasmtime.Caller, countPtr, bufSizePtr int32) int32 {
	mem, ok := memoryOf(caller)
	if !ok {
		return int32(ErrnoFault)
	}
	size := 0
	for _, e := range ctx.Env {
		size += len(e) + 1
	}
	if !putU32(mem, countPtr, uint32(len(ctx.Env))) || !putU32(mem, bufSizePtr, uint32(size)) {
		return int32(ErrnoFault)
	}
	return int32(ErrnoSuccess)
}

func environGet(ctx *Ctx, caller *wasmtime.Caller, envPtr, envBufPtr int32) int32 {
	return writeStringTable(caller, ctx.Env, envPtr, envBufPtr)
}

func writeStringTable(caller *wasmtime.Caller, values []string, ptrsPtr, bufPtr int32) int32 {
	mem, ok := memoryOf(caller)
	if !ok {
		return int32(ErrnoFault)
	}
	cursor := bufPtr
	for i, v := range values {
		if !putU32(mem, ptrsPtr+int32(i)*4, uint32(cursor)) {
			return int32(ErrnoFault)
		}
		b := append([]byte(v), 0)
		if int64(cursor)+int64(len(b)) > int64(len(mem)) {
			return int32(ErrnoFault)
		}
		copy(mem[cursor:], b)
		cursor += int32(len(b))
	}
	return int32(ErrnoSuccess)
}

func randomGet(caller *wasmtime.Caller, bufPtr, bufLen int32) int32 {
	mem, ok := memoryOf(caller)
	if !ok {
		return int32(ErrnoFault)
	}
	if bufPtr < 0 || bufLen < 0 || int64(bufPtr)+int64(bufLen) > int64(len(mem)) {
		return int32(ErrnoFault)
	}
	if _, err := rand.Read(mem[bufPtr : bufPtr+bufLen]); err != nil {
		return int32(ErrnoIO)
	}
	return int32(ErrnoSuccess)
}

func sockAccept(ctx *Ctx, caller *wasmtime.Caller, fdArg, _fdflags, newFDPtr int32) int32 {
	mem, ok := memoryOf(caller)
	if !ok {
		return int32(ErrnoFault)
	}
	f, errno := ctx.fd(fdArg)
	if errno != ErrnoSuccess {
		return int32(errno)
	}
	accepted, err := f.Accept()
	if err != nil {
		return int32(errnoFor(err))
	}
	ctx.Table = append(ctx.Table, accepted)
	if !putU32(mem, newFDPtr, uint32(len(ctx.Table)-1)) {
		return int32(ErrnoFault)
	}
	return int32(ErrnoSuccess)
}

// unsupportedTrap implements the functions the shim never supports: the
// core exposes sockets only through accept/read/write.
func unsupportedTrap(name string) *wasmtime.Trap {
	return wasmtime.NewTrap(strings.TrimSpace(name) + " unsupported")
}
