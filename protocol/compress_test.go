package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGzipRoundTrip(t *testing.T) {
	comp := GetCompressor("gzip")
	require.NotNil(t, comp)

	data := bytes.Repeat([]byte("compressible payload "), 200)
	packed, err := comp.Compress(data)
	require.NoError(t, err)
	assert.Less(t, len(packed), len(data))

	got, err := comp.Decompress(packed)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestGzipDecompressGarbage(t *testing.T) {
	comp := GetCompressor("gzip")
	_, err := comp.Decompress([]byte("not gzip at all"))
	assert.Error(t, err)
}

func TestIdentityCompressor(t *testing.T) {
	comp := GetCompressor(Identity)
	require.NotNil(t, comp)

	data := []byte("untouched")
	packed, err := comp.Compress(data)
	require.NoError(t, err)
	assert.Equal(t, data, packed)
}

func TestGetCompressorUnknown(t *testing.T) {
	assert.Nil(t, GetCompressor("zstd"))
}
