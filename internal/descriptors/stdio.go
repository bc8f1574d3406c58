package descriptors

import (
	"io"
	"os"
)

// stdioFile adopts one of the host process's own standard streams,
// backing Stdin/Stdout/Stderr slots.
type stdioFile struct {
	r io.Reader
	w io.Writer
	f *os.File // non-nil when backed directly by an *os.File, for IsATTY
}

func newStdinFile() *stdioFile  { return &stdioFile{r: os.Stdin, f: os.Stdin} }
func newStdoutFile() *stdioFile { return &stdioFile{w: os.Stdout, f: os.Stdout} }
func newStderrFile() *stdioFile { return &stdioFile{w: os.Stderr, f: os.Stderr} }

func (f *stdioFile) ReadVectored(iovs [][]byte) (int, error) {
	if f.r == nil {
		return 0, ErrNotSupported
	}
	return readVectoredFrom(f.r, iovs)
}

func (f *stdioFile) WriteVectored(iovs [][]byte) (int, error) {
	if f.w == nil {
		return 0, ErrNotSupported
	}
	return writeVectoredTo(f.w, iovs)
}

func (f *stdioFile) Seek(offset int64, whence int) (int64, error) { return 0, ErrNotSupported }

func (f *stdioFile) Stat() (Stat, error) { return Stat{Filetype: FiletypeCharacterDevice}, nil }

func (f *stdioFile) PollRead() bool  { return true }
func (f *stdioFile) PollWrite() bool { return true }

func (f *stdioFile) Accept() (File, error) { return nil, ErrNotSupported }

func (f *stdioFile) Advise(offset, length int64, advice int) error { return nil }

func (f *stdioFile) FdflagsGet() uint16           { return 0 }
func (f *stdioFile) FdflagsSet(flags uint16) error { return nil }

func (f *stdioFile) IsATTY() bool {
	if f.f == nil {
		return false
	}
	st, err := f.f.Stat()
	if err != nil {
		return false
	}
	return st.Mode()&os.ModeCharDevice != 0
}

// Close is a no-op: wasmkeep never closes the host process's own stdio.
func (f *stdioFile) Close() error { return nil }
