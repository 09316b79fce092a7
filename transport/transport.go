// Package transport defines the interface the engine consumes from the
// underlying multiplexed stream transport. The engine never parses
// HTTP/2 frames or manages flow-control windows itself; it only reads
// and writes opaque body chunks, headers, and trailers on logical
// streams supplied by an implementation of these interfaces.
//
// The engine's suspension points are exactly ReadChunk (awaiting
// transport bytes) and WriteChunk (awaiting transport write capacity);
// both park the calling goroutine and honor context cancellation.
package transport

import (
	"context"
	"net"

	"github.com/gwirelabs/gwire/metadata"
)

// PeerInfo is optionally implemented by server streams that know the
// remote address of their connection. The engine surfaces it to
// handlers through the peer package.
type PeerInfo interface {
	Peer() net.Addr
}

// Stream is the body-chunk surface shared by both ends of a logical
// stream. Read methods may be called concurrently with Write methods,
// but each direction is driven by at most one goroutine at a time.
type Stream interface {
	// ReadChunk returns the next chunk of body bytes. It returns io.EOF
	// once the peer has half-closed its write direction and all data has
	// been consumed. Implementations may yield zero-length chunks; the
	// engine treats them as no-ops.
	ReadChunk(ctx context.Context) ([]byte, error)

	// WriteChunk submits body bytes in order. It blocks while the
	// stream's flow-control window is exhausted and returns once the
	// transport has accepted the bytes. This blocking is the engine's
	// sole backpressure mechanism.
	WriteChunk(ctx context.Context, p []byte) error

	// Reset abruptly terminates the stream in both directions, signaling
	// the peer. Safe to call from any goroutine and more than once.
	Reset(err error)
}

// ClientStream is a stream opened by ClientTransport.NewStream.
type ClientStream interface {
	Stream

	// Header blocks until the server's leading metadata arrives. It is
	// available before any message is decoded.
	Header(ctx context.Context) (metadata.MD, error)

	// Trailer returns the server's trailing metadata. Valid only after
	// ReadChunk has returned io.EOF; ok is false if the stream ended
	// without trailers.
	Trailer() (md metadata.MD, ok bool)

	// CloseSend half-closes the write direction after all chunks have
	// been submitted.
	CloseSend() error
}

// ServerStream is an accepted stream handed to the serving side.
type ServerStream interface {
	Stream

	// Method returns the request path identifying the called method, in
	// the form "/service/method".
	Method() string

	// Header returns the client's leading metadata.
	Header() metadata.MD

	// SendHeader writes the server's leading metadata. It may be called
	// at most once, before the first WriteChunk.
	SendHeader(md metadata.MD) error

	// CloseWithTrailers writes trailing metadata and closes the write
	// direction. No WriteChunk may follow.
	CloseWithTrailers(md metadata.MD) error
}

// ClientTransport is the calling side of a multiplexed connection.
type ClientTransport interface {
	// NewStream opens a new logical stream carrying one call to method,
	// sending md as leading metadata.
	NewStream(ctx context.Context, method string, md metadata.MD) (ClientStream, error)

	// Close tears down the transport and every stream open on it.
	Close() error
}

// ServerTransport is the serving side of a multiplexed connection or
// listener.
type ServerTransport interface {
	// HandleStreams accepts incoming streams and invokes handle for
	// each, potentially concurrently. handle is called from the
	// transport's dispatch path before any per-stream goroutine exists;
	// it must start processing and return promptly rather than serve
	// the stream itself. HandleStreams returns when ctx is done or the
	// transport fails.
	HandleStreams(ctx context.Context, handle func(ServerStream)) error

	// Close stops accepting streams and tears down those in flight.
	Close() error
}
