package gwire

import (
	"context"
	"errors"
	"io"

	"github.com/gwirelabs/gwire/codec"
	"github.com/gwirelabs/gwire/codes"
	"github.com/gwirelabs/gwire/mem"
	"github.com/gwirelabs/gwire/metadata"
	"github.com/gwirelabs/gwire/protocol"
	"github.com/gwirelabs/gwire/status"
	"github.com/gwirelabs/gwire/transport"
)

// ClientStream defines the client-side behavior of a call in flight.
// All of its methods are invoked by the generated code or by
// applications directly; SendMsg and RecvMsg must not be called
// concurrently with themselves.
type ClientStream interface {
	// Context returns the context for this stream.
	Context() context.Context
	// Header blocks until the server's header metadata is available and
	// returns it. It fails if the call ends before headers arrive.
	Header() (metadata.MD, error)
	// Trailer returns the trailer metadata of the call. It is only valid
	// after RecvMsg has returned a terminal error (io.EOF or a status).
	Trailer() metadata.MD
	// SendMsg encodes and writes m to the stream.
	SendMsg(m any) error
	// RecvMsg reads the next message from the stream into m. It returns
	// io.EOF when the call completed with an OK status.
	RecvMsg(m any) error
	// CloseSend closes the send direction of the stream.
	CloseSend() error
}

// ServerStream defines the server-side behavior of a call in flight,
// passed to streaming handlers.
type ServerStream interface {
	// Context returns the context for this stream.
	Context() context.Context
	// SendHeader sends the header metadata. It fails once headers have
	// already been sent, which happens implicitly on the first SendMsg.
	SendHeader(md metadata.MD) error
	// SetTrailer merges md into the trailer metadata sent when the
	// handler returns.
	SetTrailer(md metadata.MD)
	// SendMsg encodes and writes m to the stream.
	SendMsg(m any) error
	// RecvMsg reads the next message from the stream into m. It returns
	// io.EOF once the client has closed its send direction.
	RecvMsg(m any) error
}

// streamCore holds the codec and framing state shared by the client
// and server stream implementations. It is not safe for concurrent
// use; each side layers its own locking on top.
type streamCore struct {
	ctx       context.Context
	codec     codec.Codec
	sendComp  protocol.Compressor
	recvComp  protocol.Compressor
	encoding  string
	threshold int
	maxRecv   int
	maxSend   int
	pool      mem.BufferPool

	dec    protocol.Decoder
	frames []protocol.Frame
	eof    bool
}

func newStreamCore(ctx context.Context, c codec.Codec, maxRecv, maxSend, threshold int) *streamCore {
	return &streamCore{
		ctx:       ctx,
		codec:     c,
		threshold: threshold,
		maxRecv:   maxRecv,
		maxSend:   maxSend,
		pool:      mem.DefaultBufferPool(),
		dec:       protocol.Decoder{MaxMessageSize: maxRecv},
	}
}

// readFrame returns the next complete frame from the stream, pulling
// chunks from ts as needed. It returns io.EOF once the peer has
// cleanly finished its send direction and every buffered frame has
// been consumed.
func (c *streamCore) readFrame(ts transport.Stream) (protocol.Frame, error) {
	for {
		if len(c.frames) > 0 {
			f := c.frames[0]
			c.frames = c.frames[1:]
			return f, nil
		}
		if c.eof {
			return protocol.Frame{}, io.EOF
		}

		chunk, err := ts.ReadChunk(c.ctx)
		if err == io.EOF {
			if cerr := c.dec.Close(); cerr != nil {
				return protocol.Frame{}, cerr
			}
			c.eof = true
			continue
		}
		if err != nil {
			return protocol.Frame{}, err
		}
		frames, err := c.dec.Push(chunk)
		if err != nil {
			return protocol.Frame{}, err
		}
		c.frames = append(c.frames, frames...)
	}
}

// decode turns a frame back into an application message.
func (c *streamCore) decode(f protocol.Frame, m any) error {
	payload := f.Payload
	if f.Compressed {
		if c.recvComp == nil {
			return &protocol.FramingError{Kind: protocol.UnknownCompression}
		}
		var err error
		payload, err = c.recvComp.Decompress(payload)
		if err != nil {
			return status.Newf(codes.Internal, "gwire: failed to decompress message: %v", err).Err()
		}
		if len(payload) > c.maxRecv {
			return &protocol.FramingError{Kind: protocol.FrameTooLarge, Size: len(payload), Limit: c.maxRecv}
		}
	}
	data := mem.BufferSlice{mem.SliceBuffer(payload)}
	if err := c.codec.Unmarshal(data, m); err != nil {
		var de *codec.DecodeError
		if errors.As(err, &de) {
			return err
		}
		return &codec.DecodeError{CodecName: c.codec.Name(), Err: err}
	}
	return nil
}

// writeFrame encodes m, optionally compresses it, and writes the
// framed result to ts. It returns the payload length as sent on the
// wire and the uncompressed length, for stats reporting.
func (c *streamCore) writeFrame(ts transport.Stream, m any) (wireLen, msgLen int, err error) {
	data, err := c.codec.Marshal(m)
	if err != nil {
		return 0, 0, status.Newf(codes.Internal, "gwire: failed to marshal message: %v", err).Err()
	}
	defer data.Free()

	msgLen = data.Len()
	if msgLen > c.maxSend {
		return 0, msgLen, status.Newf(codes.ResourceExhausted,
			"gwire: trying to send message larger than max (%d vs. %d)", msgLen, c.maxSend).Err()
	}

	payload := data.Materialize()
	compressed := false
	if c.sendComp != nil && msgLen >= c.threshold {
		cp, cerr := c.sendComp.Compress(payload)
		if cerr != nil {
			return 0, msgLen, status.Newf(codes.Internal, "gwire: failed to compress message: %v", cerr).Err()
		}
		if len(cp) < len(payload) {
			payload = cp
			compressed = true
		}
	}

	frame := protocol.EncodeFrame(compressed, payload, c.pool)
	err = ts.WriteChunk(c.ctx, frame.ReadOnlyData())
	frame.Free()
	if err != nil {
		return 0, msgLen, err
	}
	return len(payload), msgLen, nil
}

// setEncoding resolves the named compressor for the send direction and
// records the wire name advertised in grpc-encoding.
func (c *streamCore) setEncoding(name string) error {
	if name == "" || name == protocol.Identity {
		c.encoding = protocol.Identity
		return nil
	}
	comp := protocol.GetCompressor(name)
	if comp == nil {
		return status.Newf(codes.Internal, "gwire: compressor %q is not registered", name).Err()
	}
	c.sendComp = comp
	c.encoding = name
	return nil
}

// resolveRecvEncoding resolves the peer's advertised encoding for the
// receive direction. An unknown name is tolerated until a compressed
// frame actually arrives.
func (c *streamCore) resolveRecvEncoding(name string) {
	if name == "" {
		name = protocol.Identity
	}
	if name == protocol.Identity {
		return
	}
	c.recvComp = protocol.GetCompressor(name)
}
