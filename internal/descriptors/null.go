package descriptors

// nullFile discards all writes and yields EOF on every read, backing a
// Null slot.
type nullFile struct{}

func newNullFile() *nullFile { return &nullFile{} }

func (f *nullFile) ReadVectored(iovs [][]byte) (int, error) { return 0, nil }

func (f *nullFile) WriteVectored(iovs [][]byte) (int, error) {
	total := 0
	for _, buf := range iovs {
		total += len(buf)
	}
	return total, nil
}

func (f *nullFile) Seek(offset int64, whence int) (int64, error) { return 0, nil }

func (f *nullFile) Stat() (Stat, error) { return Stat{Filetype: FiletypeUnknown}, nil }

func (f *nullFile) PollRead() bool  { return true }
func (f *nullFile) PollWrite() bool { return true }

func (f *nullFile) Accept() (File, error) { return nil, ErrNotSupported }

func (f *nullFile) Advise(offset, length int64, advice int) error { return nil }

func (f *nullFile) FdflagsGet() uint16         { return 0 }
func (f *nullFile) FdflagsSet(flags uint16) error { return nil }
func (f *nullFile) IsATTY() bool               { return false }
func (f *nullFile) Close() error               { return nil }
