// Package mem provides pooled, reference-counted byte buffers used on the
// encode and decode paths. Buffers above a pooling threshold are recycled
// through a tiered pool; small ones are plain slices, since pooling them
// costs more than it saves.
package mem

import (
	"sync"
	"sync/atomic"
)

var (
	bufferPoolingThreshold = 1 << 10

	bufferObjectPool = sync.Pool{New: func() any { return new(buffer) }}
	refObjectPool    = sync.Pool{New: func() any { return new(atomic.Int32) }}
)

// Buffer is a read-only view of a byte slice with explicit lifetime.
type Buffer interface {
	// ReadOnlyData returns the underlying byte slice,
	// note that it is immutable.
	ReadOnlyData() []byte
	// Ref increases the reference counter for this Buffer.
	Ref()
	// Free decrements this Buffer's reference counter and returns the
	// underlying byte slice to its pool if the counter reaches 0.
	Free()
	// Len returns the Buffer's size.
	Len() int
}

// NewBuffer initializes the Buffer with the given data and a counter of 1.
// When the last reference is released, data is returned to pool. Small
// slices bypass the pool entirely.
func NewBuffer(data *[]byte, pool BufferPool) Buffer {
	if pool == nil || IsBelowBufferPoolingThreshold(cap(*data)) {
		return SliceBuffer(*data)
	}

	b := bufferObjectPool.Get().(*buffer)
	b.originData = data
	b.data = *data
	b.pool = pool
	b.refs = refObjectPool.Get().(*atomic.Int32)
	b.refs.Add(1)
	return b
}

// Copy creates a Buffer holding a copy of data with a reference count of
// one.
func Copy(data []byte, pool BufferPool) Buffer {
	if IsBelowBufferPoolingThreshold(len(data)) {
		buf := make(SliceBuffer, len(data))
		copy(buf, data)
		return buf
	}

	buf := pool.Get(len(data))
	copy(*buf, data)
	return NewBuffer(buf, pool)
}

type buffer struct {
	originData *[]byte
	data       []byte
	refs       *atomic.Int32
	pool       BufferPool
}

func (b *buffer) ReadOnlyData() []byte {
	if b.refs == nil {
		panic("cannot read freed buffer")
	}
	return b.data
}

func (b *buffer) Ref() {
	if b.refs == nil {
		panic("cannot ref freed buffer")
	}
	b.refs.Add(1)
}

func (b *buffer) Free() {
	if b.refs == nil {
		panic("cannot free freed buffer")
	}

	refs := b.refs.Add(-1)
	switch {
	case refs > 0:
	case refs == 0:
		if b.pool != nil {
			b.pool.Put(b.originData)
		}

		refObjectPool.Put(b.refs)
		b.originData = nil
		b.data = nil
		b.refs = nil
		b.pool = nil
		bufferObjectPool.Put(b)
	default:
		panic("cannot free freed buffer")
	}
}

func (b *buffer) Len() int {
	return len(b.ReadOnlyData())
}

// IsBelowBufferPoolingThreshold reports whether a buffer of the given size
// is too small to be worth pooling.
func IsBelowBufferPoolingThreshold(size int) bool {
	return size <= bufferPoolingThreshold
}

// SliceBuffer is a Buffer implementation that wraps a plain byte slice.
// Used when the required size does not reach the pooling threshold.
type SliceBuffer []byte

func (s SliceBuffer) ReadOnlyData() []byte { return s }

func (s SliceBuffer) Ref() {}

func (s SliceBuffer) Free() {}

func (s SliceBuffer) Len() int { return len(s) }

type emptyBuffer struct{}

func (e emptyBuffer) ReadOnlyData() []byte { return nil }

func (e emptyBuffer) Ref()  {}
func (e emptyBuffer) Free() {}

func (e emptyBuffer) Len() int { return 0 }
