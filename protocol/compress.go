package protocol

import (
	"bytes"
	"compress/gzip"
	"io"
	"sync"
)

// CompressThreshold is the payload size below which compression is not
// attempted; tiny messages grow under gzip.
const CompressThreshold = 1024

// Identity names the no-op encoding.
const Identity = "identity"

// Compressor compresses and decompresses whole message payloads. Streams
// negotiate an algorithm by name through the grpc-encoding header.
// Implementations must be safe for concurrent use.
type Compressor interface {
	Name() string
	Compress([]byte) ([]byte, error)
	Decompress([]byte) ([]byte, error)
}

var compressors = map[string]Compressor{
	"identity": IdentityCompressor{},
	"gzip":     GzipCompressor{},
}

// GetCompressor returns the registered compressor with the given name,
// or nil if none is registered.
func GetCompressor(name string) Compressor {
	return compressors[name]
}

// GzipCompressor implements gzip compression with pooled writers.
type GzipCompressor struct{}

func (g GzipCompressor) Name() string { return "gzip" }

func (g GzipCompressor) Compress(data []byte) ([]byte, error) {
	return zip(data)
}

func (g GzipCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	return unzip(data)
}

// IdentityCompressor passes data through unchanged.
type IdentityCompressor struct{}

func (c IdentityCompressor) Name() string { return "identity" }

func (c IdentityCompressor) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (c IdentityCompressor) Decompress(data []byte) ([]byte, error) {
	return data, nil
}

var (
	spWriter sync.Pool
	spReader sync.Pool
	spBuffer sync.Pool
)

func init() {
	spWriter = sync.Pool{New: func() interface{} {
		return gzip.NewWriter(nil)
	}}
	spReader = sync.Pool{New: func() interface{} {
		return new(gzip.Reader)
	}}
	spBuffer = sync.Pool{New: func() interface{} {
		return bytes.NewBuffer(nil)
	}}
}

// unzip unzips data.
func unzip(data []byte) ([]byte, error) {
	buf := bytes.NewBuffer(data)

	gr := spReader.Get().(*gzip.Reader)
	defer func() {
		spReader.Put(gr)
	}()
	err := gr.Reset(buf)
	if err != nil {
		return nil, err
	}
	defer gr.Close()

	data, err = io.ReadAll(gr)
	if err != nil {
		return nil, err
	}
	return data, err
}

// zip zips data.
func zip(data []byte) ([]byte, error) {
	buf := spBuffer.Get().(*bytes.Buffer)
	w := spWriter.Get().(*gzip.Writer)
	w.Reset(buf)

	defer func() {
		buf.Reset()
		spBuffer.Put(buf)
		spWriter.Put(w)
	}()
	_, err := w.Write(data)
	if err != nil {
		return nil, err
	}
	err = w.Close()
	if err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}
