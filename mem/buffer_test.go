package mem

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBufferPoolReuse(t *testing.T) {
	pool := DefaultBufferPool()

	buf := pool.Get(1024)
	require.NotNil(t, buf)
	assert.Len(t, *buf, 1024)
	pool.Put(buf)

	buf = pool.Get(5000)
	assert.Len(t, *buf, 5000, "pooled capacity is resliced to the requested length")
	pool.Put(buf)
}

func TestBufferRefCounting(t *testing.T) {
	pool := DefaultBufferPool()
	data := pool.Get(2048)
	copy(*data, "refcounted")

	b := NewBuffer(data, pool)
	assert.Equal(t, 2048, b.Len())

	b.Ref()
	b.Free()
	assert.Equal(t, []byte("refcounted"), b.ReadOnlyData()[:10], "buffer stays alive while references remain")
	b.Free()
}

func TestCopyBelowThresholdSkipsPool(t *testing.T) {
	small := Copy([]byte("tiny"), DefaultBufferPool())
	assert.Equal(t, []byte("tiny"), small.ReadOnlyData())
	_, isSlice := small.(SliceBuffer)
	assert.True(t, isSlice, "small payloads do not take a pooled buffer")
	small.Free()
}

func TestBufferSliceLenAndMaterialize(t *testing.T) {
	s := BufferSlice{SliceBuffer("abc"), SliceBuffer(""), SliceBuffer("defg")}
	assert.Equal(t, 7, s.Len())
	assert.Equal(t, []byte("abcdefg"), s.Materialize())
}

func TestBufferSliceReader(t *testing.T) {
	s := BufferSlice{SliceBuffer("hello "), SliceBuffer("world")}
	r := s.NewReader()
	assert.Equal(t, 11, r.Remain())

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), got)
	assert.Equal(t, 0, r.Remain())

	_, err = r.ReadByte()
	assert.Equal(t, io.EOF, err)
}

func TestWriterAppendsToSlice(t *testing.T) {
	var s BufferSlice
	w := NewWriter(&s, DefaultBufferPool())

	n, err := w.Write([]byte("chunk one "))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	_, err = w.Write([]byte("chunk two"))
	require.NoError(t, err)

	assert.Equal(t, []byte("chunk one chunk two"), s.Materialize())
	s.Free()
}
