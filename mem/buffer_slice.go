package mem

import "io"

type BufferSlice []Buffer

// Len returns the sum of the length of all the Buffers in this slice.
func (s BufferSlice) Len() int {
	length := 0
	for _, b := range s {
		length += b.Len()
	}

	return length
}

// Free invokes Buffer.Free() on each Buffer in the slice.
func (s BufferSlice) Free() {
	for _, b := range s {
		b.Free()
	}
}

// Ref invokes Ref on each buffer in the slice.
func (s BufferSlice) Ref() {
	for _, b := range s {
		b.Ref()
	}
}

// Materialize concatenates all the underlying Buffer's data into a single
// contiguous buffer using CopyTo.
func (s BufferSlice) Materialize() []byte {
	l := s.Len()
	if l == 0 {
		return nil
	}
	out := make([]byte, l)
	s.CopyTo(out)
	return out
}

// MaterializeToBuffer is similar to Materialize, except that it returns a
// single pooled Buffer. When the slice already holds exactly one Buffer it
// is returned with an extra reference instead of being copied.
func (s BufferSlice) MaterializeToBuffer(pool BufferPool) Buffer {
	if len(s) == 1 {
		s[0].Ref()
		return s[0]
	}
	sLen := s.Len()
	if sLen == 0 {
		return emptyBuffer{}
	}
	buf := pool.Get(sLen)
	s.CopyTo(*buf)
	return NewBuffer(buf, pool)
}

// CopyTo copies the data from the underlying buffers to the given buffer
// dst, returning the number of bytes copied. The semantics are the same as
// those of the copy built-in function.
func (s BufferSlice) CopyTo(dst []byte) int {
	off := 0
	for _, b := range s {
		off += copy(dst[off:], b.ReadOnlyData())
	}
	return off
}

// NewReader returns a new Reader for the input slice after taking
// references to each underlying buffer.
func (s BufferSlice) NewReader() Reader {
	s.Ref()
	return &sliceReader{
		data: s,
		len:  s.Len(),
	}
}

type Reader interface {
	io.Reader
	io.ByteReader
	// Close frees the underlying BufferSlice and never returns an error.
	// Subsequent calls to Read will return (0, io.EOF).
	Close() error
	// Remain returns the number of unread bytes remaining in the slice.
	Remain() int
}

type sliceReader struct {
	data      BufferSlice
	len       int
	bufferIdx int // offset into the buffer currently being read
}

func (s *sliceReader) Read(buf []byte) (n int, err error) {
	if s.len == 0 {
		return 0, io.EOF
	}

	for len(buf) != 0 && s.len != 0 {
		data := s.data[0].ReadOnlyData()
		cp := copy(buf, data[s.bufferIdx:])
		s.len -= cp
		s.bufferIdx += cp
		n += cp
		buf = buf[cp:]

		s.freeFirstBufferIfEmpty()
	}

	return n, nil
}

func (s *sliceReader) ReadByte() (byte, error) {
	if s.len == 0 {
		return 0, io.EOF
	}

	// There may be any number of empty buffers in the slice; skip them all
	// until a non-empty buffer is reached. Guaranteed to exit since s.len
	// is not 0.
	for s.freeFirstBufferIfEmpty() {
	}

	b := s.data[0].ReadOnlyData()[s.bufferIdx]
	s.bufferIdx++
	s.len--
	s.freeFirstBufferIfEmpty()
	return b, nil
}

func (s *sliceReader) Close() error {
	s.data.Free()
	s.data = nil
	s.len = 0
	return nil
}

func (s *sliceReader) Remain() int {
	return s.len
}

func (s *sliceReader) freeFirstBufferIfEmpty() bool {
	if len(s.data) == 0 || s.bufferIdx != len(s.data[0].ReadOnlyData()) {
		return false
	}

	s.data[0].Free()
	s.data = s.data[1:]
	s.bufferIdx = 0
	return true
}

var _ io.Writer = (*writer)(nil)

type writer struct {
	buffers *BufferSlice
	pool    BufferPool
}

func (w writer) Write(p []byte) (n int, err error) {
	b := Copy(p, w.pool)
	*w.buffers = append(*w.buffers, b)
	return b.Len(), nil
}

// NewWriter wraps the given BufferSlice and BufferPool to implement the
// io.Writer interface. Each call to Write copies the contents of the given
// buffer into a new Buffer pulled from the pool and appends it to the
// BufferSlice.
func NewWriter(buffers *BufferSlice, pool BufferPool) io.Writer {
	return &writer{
		buffers: buffers,
		pool:    pool,
	}
}
