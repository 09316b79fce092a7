package mem

import (
	"sync"
)

// BufferPool is a self-managed pool with various buffer sizes.
type BufferPool interface {
	// Get returns a buffer with the size.
	Get(size int) *[]byte
	// Put returns the buffer back to the pool.
	Put(buffer *[]byte)
}

var defaultPool tieredPool

var bufferPoolSizes = []int{
	1 << 7,  // 128B
	1 << 9,  // 512B
	1 << 10, // 1KB
	1 << 12, // 4KB
	1 << 14, // 16KB
	1 << 16, // 64KB
	1 << 18, // 256KB
	1 << 20, // 1MB
	1 << 22, // 4MB
}

type tieredPool struct {
	pools   []*sync.Pool
	maxSize int
}

func init() {
	defaultPool.maxSize = bufferPoolSizes[len(bufferPoolSizes)-1]
	defaultPool.pools = make([]*sync.Pool, len(bufferPoolSizes))

	for i := range bufferPoolSizes {
		size := bufferPoolSizes[i]
		defaultPool.pools[i] = &sync.Pool{
			New: func() interface{} {
				buf := make([]byte, 0, size)
				return &buf
			},
		}
	}
}

// DefaultBufferPool returns the shared pool.
func DefaultBufferPool() BufferPool {
	return &defaultPool
}

// Get returns a buffer with the size.
func (p *tieredPool) Get(size int) *[]byte {
	if size <= 0 {
		return &[]byte{}
	}

	if i := p.findBestFitPool(size); i >= 0 {
		buf := p.pools[i].Get().(*[]byte)
		*buf = (*buf)[:size]
		return buf
	}

	// Larger than the biggest tier; allocate directly.
	buf := make([]byte, size)
	return &buf
}

// Put returns the buffer to the pool.
func (p *tieredPool) Put(buffer *[]byte) {
	if buffer == nil {
		return
	}

	size := cap(*buffer)
	if size <= 0 || size > p.maxSize {
		return
	}

	*buffer = (*buffer)[:0]
	p.pools[p.findClosestPool(size)].Put(buffer)
}

func (p *tieredPool) findBestFitPool(size int) int {
	for i, poolSize := range bufferPoolSizes {
		if size <= poolSize {
			return i
		}
	}
	return -1
}

func (p *tieredPool) findClosestPool(size int) int {
	for i := len(bufferPoolSizes) - 1; i >= 0; i-- {
		if size >= bufferPoolSizes[i] {
			return i
		}
	}
	return 0
}
