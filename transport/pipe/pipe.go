// Package pipe implements an in-memory transport: many logical streams
// multiplexed over one in-process connection, each with its own
// credit-based flow-control window, headers, and trailers. It exists so
// the engine (and code embedding it) can run full calls without a
// network, with deterministic backpressure.
package pipe

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/gwirelabs/gwire/metadata"
	"github.com/gwirelabs/gwire/transport"
)

// ErrClosed is returned for operations on a closed Pipe.
var ErrClosed = errors.New("pipe: transport closed")

var errWriteClosed = errors.New("pipe: write on closed stream direction")

const defaultWindow = 64 * 1024

// Pipe is both ends of an in-memory multiplexed connection.
type Pipe struct {
	mu     sync.Mutex
	accept chan *stream
	closed chan struct{}
	window int
	once   sync.Once
}

// Option configures a Pipe.
type Option func(*Pipe)

// WithWindow sets the per-direction flow-control window in bytes.
func WithWindow(bytes int) Option {
	return func(p *Pipe) {
		if bytes > 0 {
			p.window = bytes
		}
	}
}

// New returns a connected in-memory transport pair.
func New(opts ...Option) *Pipe {
	p := &Pipe{
		accept: make(chan *stream, 128),
		closed: make(chan struct{}),
		window: defaultWindow,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Client returns the calling side of the pipe.
func (p *Pipe) Client() transport.ClientTransport {
	return clientSide{p}
}

// Listener returns the serving side of the pipe.
func (p *Pipe) Listener() transport.ServerTransport {
	return serverSide{p}
}

// Close tears down both sides. Streams without buffered trailers fail
// with ErrClosed.
func (p *Pipe) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

type clientSide struct{ p *Pipe }

func (c clientSide) NewStream(ctx context.Context, method string, md metadata.MD) (transport.ClientStream, error) {
	s := &stream{
		method:   method,
		clientMD: md.Copy(),
		c2s:      newHalf(c.p.window),
		s2c:      newHalf(c.p.window),
	}
	select {
	case c.p.accept <- s:
		return clientStream{s}, nil
	case <-c.p.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c clientSide) Close() error { return c.p.Close() }

type serverSide struct{ p *Pipe }

func (s serverSide) HandleStreams(ctx context.Context, handle func(transport.ServerStream)) error {
	for {
		select {
		case st := <-s.p.accept:
			handle(serverStream{st})
		case <-s.p.closed:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s serverSide) Close() error { return s.p.Close() }

// stream is one logical call: two independently flow-controlled halves.
type stream struct {
	method   string
	clientMD metadata.MD
	c2s      *half // client writes, server reads
	s2c      *half // server writes, client reads
}

// half is one direction of a stream. The window counts queued, unread
// bytes; writers block while it is full.
type half struct {
	mu      sync.Mutex
	notify  chan struct{}
	chunks  [][]byte
	pending int
	window  int

	headers    metadata.MD
	hasHeaders bool

	trailers    metadata.MD
	hasTrailers bool

	closed bool
	err    error
}

func newHalf(window int) *half {
	return &half{notify: make(chan struct{}), window: window}
}

// broadcast wakes every waiter. Callers hold h.mu.
func (h *half) broadcast() {
	close(h.notify)
	h.notify = make(chan struct{})
}

func (h *half) write(ctx context.Context, p []byte) error {
	for {
		h.mu.Lock()
		switch {
		case h.err != nil:
			err := h.err
			h.mu.Unlock()
			return err
		case h.closed:
			h.mu.Unlock()
			return errWriteClosed
		case h.pending == 0 || h.pending+len(p) <= h.window:
			buf := make([]byte, len(p))
			copy(buf, p)
			h.chunks = append(h.chunks, buf)
			h.pending += len(p)
			h.broadcast()
			h.mu.Unlock()
			return nil
		}
		wait := h.notify
		h.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *half) read(ctx context.Context) ([]byte, error) {
	for {
		h.mu.Lock()
		if len(h.chunks) > 0 {
			chunk := h.chunks[0]
			h.chunks = h.chunks[1:]
			h.pending -= len(chunk)
			h.broadcast()
			h.mu.Unlock()
			return chunk, nil
		}
		if h.err != nil {
			err := h.err
			h.mu.Unlock()
			return nil, err
		}
		if h.closed {
			h.mu.Unlock()
			return nil, io.EOF
		}
		wait := h.notify
		h.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (h *half) closeWrite(trailers metadata.MD) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.err != nil {
		return
	}
	h.closed = true
	if trailers != nil {
		h.trailers = trailers.Copy()
		h.hasTrailers = true
	}
	h.broadcast()
}

// reset aborts the direction. A half that already buffered its trailers
// ignores the reset: delivered termination wins over abrupt termination.
func (h *half) reset(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hasTrailers || h.err != nil {
		return
	}
	h.err = err
	h.chunks = nil
	h.pending = 0
	h.broadcast()
}

func (h *half) setHeaders(md metadata.MD) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hasHeaders || h.closed || h.err != nil {
		return
	}
	h.headers = md.Copy()
	h.hasHeaders = true
	h.broadcast()
}

func (h *half) waitHeaders(ctx context.Context) (metadata.MD, error) {
	for {
		h.mu.Lock()
		if h.hasHeaders {
			md := h.headers
			h.mu.Unlock()
			return md, nil
		}
		if h.err != nil {
			err := h.err
			h.mu.Unlock()
			return nil, err
		}
		if h.closed {
			h.mu.Unlock()
			return metadata.MD{}, nil
		}
		wait := h.notify
		h.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (h *half) trailer() (metadata.MD, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.trailers, h.hasTrailers
}

var errReset = errors.New("pipe: stream reset by peer")

type clientStream struct{ s *stream }

func (c clientStream) ReadChunk(ctx context.Context) ([]byte, error) {
	return c.s.s2c.read(ctx)
}

func (c clientStream) WriteChunk(ctx context.Context, p []byte) error {
	return c.s.c2s.write(ctx, p)
}

func (c clientStream) CloseSend() error {
	c.s.c2s.closeWrite(nil)
	return nil
}

func (c clientStream) Header(ctx context.Context) (metadata.MD, error) {
	return c.s.s2c.waitHeaders(ctx)
}

func (c clientStream) Trailer() (metadata.MD, bool) {
	return c.s.s2c.trailer()
}

func (c clientStream) Reset(err error) {
	if err == nil {
		err = errReset
	}
	c.s.c2s.reset(err)
	c.s.s2c.reset(err)
}

// addr is the synthetic address both ends of a Pipe report.
type addr struct{}

func (addr) Network() string { return "pipe" }
func (addr) String() string  { return "pipe" }

type serverStream struct{ s *stream }

func (s serverStream) Method() string { return s.s.method }

func (s serverStream) Peer() net.Addr { return addr{} }

func (s serverStream) Header() metadata.MD { return s.s.clientMD }

func (s serverStream) ReadChunk(ctx context.Context) ([]byte, error) {
	return s.s.c2s.read(ctx)
}

func (s serverStream) WriteChunk(ctx context.Context, p []byte) error {
	return s.s.s2c.write(ctx, p)
}

func (s serverStream) SendHeader(md metadata.MD) error {
	s.s.s2c.setHeaders(md)
	return nil
}

func (s serverStream) CloseWithTrailers(md metadata.MD) error {
	s.s.s2c.closeWrite(md)
	return nil
}

func (s serverStream) Reset(err error) {
	if err == nil {
		err = errReset
	}
	s.s.c2s.reset(err)
	s.s.s2c.reset(err)
}
