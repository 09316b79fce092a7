// Package protocol owns the gRPC wire format: the 5-byte length-delimited
// message envelope, per-message compression, and the mapping between a
// structured Status and the reserved trailer keys.
package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/gwirelabs/gwire/mem"
)

const (
	// EnvelopeSize is the fixed size of the header preceding each message:
	// 1 byte compression flag, 4 bytes big-endian unsigned payload length.
	EnvelopeSize = 5

	flagCompressed = 0x01
)

// Frame is one logical message as carried on the wire.
type Frame struct {
	Compressed bool
	Payload    []byte
}

// FramingErrorKind classifies failures of the framing layer.
type FramingErrorKind int

const (
	// TruncatedMessage means the stream ended mid-envelope or mid-payload.
	TruncatedMessage FramingErrorKind = iota
	// FrameTooLarge means the envelope announced a payload above the
	// configured maximum.
	FrameTooLarge
	// UnknownCompression means the compression flag named an algorithm the
	// receiver cannot decode.
	UnknownCompression
)

// FramingError is fatal to the stream it occurred on. It never affects
// sibling streams on the same connection.
type FramingError struct {
	Kind  FramingErrorKind
	Size  int
	Limit int
}

func (e *FramingError) Error() string {
	switch e.Kind {
	case TruncatedMessage:
		return fmt.Sprintf("protocol: stream ended with %d buffered bytes of an incomplete message", e.Size)
	case FrameTooLarge:
		return fmt.Sprintf("protocol: received message of %d bytes exceeding the limit of %d", e.Size, e.Limit)
	case UnknownCompression:
		return "protocol: message compressed with unsupported algorithm"
	default:
		return "protocol: framing error"
	}
}

// AppendFrame appends the envelope and payload for one message to dst and
// returns the extended slice. The envelope and payload form a single
// logical write; callers must submit the result as one chunk.
func AppendFrame(dst []byte, compressed bool, payload []byte) []byte {
	var hdr [EnvelopeSize]byte
	if compressed {
		hdr[0] = flagCompressed
	}
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(payload)))
	dst = append(dst, hdr[:]...)
	return append(dst, payload...)
}

// EncodeFrame encodes one message into a pooled buffer: envelope
// immediately followed by the payload. The caller owns the returned
// Buffer and must Free it after the write is submitted.
func EncodeFrame(compressed bool, payload []byte, pool mem.BufferPool) mem.Buffer {
	buf := pool.Get(EnvelopeSize + len(payload))
	data := *buf
	data[0] = 0
	if compressed {
		data[0] = flagCompressed
	}
	binary.BigEndian.PutUint32(data[1:EnvelopeSize], uint32(len(payload)))
	copy(data[EnvelopeSize:], payload)
	return mem.NewBuffer(buf, pool)
}

// Decoder accumulates transport chunks and emits complete Frames. It is
// the mutable parse state of one stream's read half and must never be
// shared across streams or goroutines.
//
// Consuming the emitted frames is destructive: a frame is yielded exactly
// once and never replayed.
type Decoder struct {
	// MaxMessageSize bounds the payload length a single frame may
	// announce. Zero means no limit.
	MaxMessageSize int

	buf  []byte
	err  error
	done bool
}

// Push appends one chunk of transport bytes and returns every frame that
// is now complete, in wire order. A nil or empty chunk is a no-op. Once
// Push has returned an error the Decoder is poisoned and every later call
// returns the same error.
func (d *Decoder) Push(chunk []byte) ([]Frame, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.done {
		return nil, &FramingError{Kind: TruncatedMessage}
	}
	if len(chunk) > 0 {
		d.buf = append(d.buf, chunk...)
	}

	var frames []Frame
	off := 0
	for {
		if len(d.buf)-off < EnvelopeSize {
			break
		}
		length := int(binary.BigEndian.Uint32(d.buf[off+1 : off+EnvelopeSize]))
		if d.MaxMessageSize > 0 && length > d.MaxMessageSize {
			d.err = &FramingError{Kind: FrameTooLarge, Size: length, Limit: d.MaxMessageSize}
			d.buf = nil
			return nil, d.err
		}
		if len(d.buf)-off < EnvelopeSize+length {
			break
		}

		payload := make([]byte, length)
		copy(payload, d.buf[off+EnvelopeSize:off+EnvelopeSize+length])
		frames = append(frames, Frame{
			Compressed: d.buf[off]&flagCompressed != 0,
			Payload:    payload,
		})
		off += EnvelopeSize + length
	}

	if off > 0 {
		// Compact instead of sliding so a long-lived stream does not pin
		// the backing array of every chunk it ever received.
		n := copy(d.buf, d.buf[off:])
		d.buf = d.buf[:n]
	}
	return frames, nil
}

// Close signals end-of-data from the transport. A clean end requires an
// empty cursor; any buffered bytes of an incomplete envelope or payload
// are a framing error, not a normal end-of-stream.
func (d *Decoder) Close() error {
	if d.err != nil {
		return d.err
	}
	d.done = true
	if len(d.buf) > 0 {
		d.err = &FramingError{Kind: TruncatedMessage, Size: len(d.buf)}
		d.buf = nil
		return d.err
	}
	return nil
}

// Buffered returns the number of accumulated, not yet consumed bytes.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}
