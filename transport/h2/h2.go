// Package h2 adapts the engine's transport interfaces onto HTTP/2
// using golang.org/x/net/http2. Each call maps onto one POST request:
// leading metadata travels as request and response headers, body
// chunks as DATA frames, and trailing metadata as HTTP trailers.
//
// The adapter speaks cleartext HTTP/2 (h2c). Flow control, stream
// multiplexing, and frame handling all belong to the http2 package;
// this file only translates between its request/response surface and
// the chunk-oriented stream interfaces.
package h2

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/net/http2"

	"github.com/gwirelabs/gwire/metadata"
	"github.com/gwirelabs/gwire/transport"
)

const contentType = "application/grpc"

// reserved transport-level headers never surfaced as metadata.
func isTransportHeader(k string) bool {
	switch k {
	case "content-type", "te", "connection", "trailer", "content-length":
		return true
	}
	return false
}

func headerToMD(h http.Header) metadata.MD {
	md := metadata.MD{}
	for k, vs := range h {
		lk := strings.ToLower(k)
		if isTransportHeader(lk) || strings.HasPrefix(lk, ":") {
			continue
		}
		if metadata.IsBinaryKey(lk) {
			for _, v := range vs {
				b, err := metadata.DecodeBinaryValue(v)
				if err != nil {
					continue
				}
				md[lk] = append(md[lk], string(b))
			}
			continue
		}
		md[lk] = append(md[lk], vs...)
	}
	return md
}

// mdToHeader writes md into h. Binary-keyed values are base64-encoded;
// raw bytes are not legal HTTP field values.
func mdToHeader(md metadata.MD, h http.Header) {
	for k, vs := range md {
		bin := metadata.IsBinaryKey(k)
		for _, v := range vs {
			if bin {
				v = metadata.EncodeBinaryValue([]byte(v))
			}
			h.Add(k, v)
		}
	}
}

// --- client side ---

// ClientTransport issues calls to one h2c server address.
type ClientTransport struct {
	addr string
	tr   *http2.Transport
}

// NewClientTransport returns a transport dialing addr over cleartext
// HTTP/2.
func NewClientTransport(addr string) *ClientTransport {
	return &ClientTransport{
		addr: addr,
		tr: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, a string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, a)
			},
		},
	}
}

// NewStream opens one call as an HTTP/2 POST request.
func (c *ClientTransport) NewStream(ctx context.Context, method string, md metadata.MD) (transport.ClientStream, error) {
	pr, pw := io.Pipe()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+c.addr+method, pr)
	if err != nil {
		pw.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Te", "trailers")
	mdToHeader(md, req.Header)

	cs := &clientStream{
		pw:     pw,
		respCh: make(chan *http.Response, 1),
		errCh:  make(chan error, 1),
	}
	go func() {
		resp, err := c.tr.RoundTrip(req)
		if err != nil {
			cs.errCh <- err
			pr.CloseWithError(err)
			return
		}
		cs.respCh <- resp
	}()
	return cs, nil
}

// Close closes idle connections; streams in flight fail on their next
// read or write.
func (c *ClientTransport) Close() error {
	c.tr.CloseIdleConnections()
	return nil
}

type clientStream struct {
	pw     *io.PipeWriter
	respCh chan *http.Response
	errCh  chan error

	mu       sync.Mutex
	resp     *http.Response
	resolved bool
	eof      bool
}

// waitResp blocks until the response headers have arrived.
func (cs *clientStream) waitResp(ctx context.Context) (*http.Response, error) {
	cs.mu.Lock()
	if cs.resolved {
		resp := cs.resp
		cs.mu.Unlock()
		if resp == nil {
			return nil, errors.New("h2: stream failed before response headers")
		}
		return resp, nil
	}
	cs.mu.Unlock()

	select {
	case resp := <-cs.respCh:
		cs.mu.Lock()
		cs.resp = resp
		cs.resolved = true
		cs.mu.Unlock()
		return resp, nil
	case err := <-cs.errCh:
		cs.mu.Lock()
		cs.resolved = true
		cs.mu.Unlock()
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (cs *clientStream) Header(ctx context.Context) (metadata.MD, error) {
	resp, err := cs.waitResp(ctx)
	if err != nil {
		return nil, err
	}
	return headerToMD(resp.Header), nil
}

type readResult struct {
	n   int
	err error
}

// readChunkCtx reads from body, abandoning the wait when ctx expires.
// The body is closed on expiry so the abandoned read terminates.
func readChunkCtx(ctx context.Context, body io.ReadCloser, buf []byte) (int, error) {
	ch := make(chan readResult, 1)
	go func() {
		n, err := body.Read(buf)
		ch <- readResult{n, err}
	}()
	select {
	case r := <-ch:
		return r.n, r.err
	case <-ctx.Done():
		body.Close()
		return 0, ctx.Err()
	}
}

func (cs *clientStream) ReadChunk(ctx context.Context) ([]byte, error) {
	resp, err := cs.waitResp(ctx)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 32*1024)
	n, err := readChunkCtx(ctx, resp.Body, buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == io.EOF {
		cs.mu.Lock()
		cs.eof = true
		cs.mu.Unlock()
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}
	return nil, nil
}

func (cs *clientStream) WriteChunk(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// The pipe feeds the request body; http2's flow control throttles the
	// reader, which in turn blocks this write.
	_, err := cs.pw.Write(p)
	return err
}

func (cs *clientStream) CloseSend() error {
	return cs.pw.Close()
}

func (cs *clientStream) Trailer() (metadata.MD, bool) {
	cs.mu.Lock()
	resp, eof := cs.resp, cs.eof
	cs.mu.Unlock()
	if resp == nil || !eof {
		return nil, false
	}
	if len(resp.Trailer) == 0 {
		return nil, false
	}
	return headerToMD(resp.Trailer), true
}

func (cs *clientStream) Reset(err error) {
	cs.pw.CloseWithError(err)
	cs.mu.Lock()
	resp := cs.resp
	cs.mu.Unlock()
	if resp != nil {
		resp.Body.Close()
	}
}

// --- server side ---

// Server accepts h2c connections on a listener and surfaces each
// request as a ServerStream.
type Server struct {
	lis net.Listener
	h2  *http2.Server

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
}

// NewServer wraps lis. The caller owns the listener's lifetime through
// Close.
func NewServer(lis net.Listener) *Server {
	return &Server{
		lis:   lis,
		h2:    &http2.Server{},
		conns: make(map[net.Conn]struct{}),
	}
}

// HandleStreams accepts connections and serves each over HTTP/2,
// invoking handle once per request.
func (s *Server) HandleStreams(ctx context.Context, handle func(transport.ServerStream)) error {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasPrefix(r.Header.Get("Content-Type"), contentType) {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		ss := &serverStream{w: w, r: r, done: make(chan struct{})}
		handle(ss)
		// Returning from this handler finalizes the response, so hold
		// the goroutine until the stream has been closed or reset.
		<-ss.done
	})

	go func() {
		<-ctx.Done()
		s.lis.Close()
	}()

	for {
		conn, err := s.lis.Accept()
		if err != nil {
			if ctx.Err() != nil || s.isClosed() {
				return nil
			}
			return err
		}
		s.track(conn)
		go func() {
			defer s.untrack(conn)
			s.h2.ServeConn(conn, &http2.ServeConnOpts{Handler: handler})
		}()
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(c net.Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// Close stops the listener and tears down every open connection.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	return s.lis.Close()
}

type serverStream struct {
	w    http.ResponseWriter
	r    *http.Request
	done chan struct{}

	headerOnce sync.Once
	finishOnce sync.Once
	headerMD   metadata.MD
	aborted    atomic.Bool
}

func (ss *serverStream) finish() {
	ss.finishOnce.Do(func() { close(ss.done) })
}

func (ss *serverStream) Method() string { return ss.r.URL.Path }

// remoteAddr reports the TCP peer as http sees it.
type remoteAddr string

func (remoteAddr) Network() string  { return "tcp" }
func (a remoteAddr) String() string { return string(a) }

func (ss *serverStream) Peer() net.Addr { return remoteAddr(ss.r.RemoteAddr) }

func (ss *serverStream) Header() metadata.MD { return headerToMD(ss.r.Header) }

func (ss *serverStream) SendHeader(md metadata.MD) error {
	sent := true
	ss.headerOnce.Do(func() {
		sent = false
		ss.headerMD = md
		ss.writeHeader()
	})
	if sent {
		return errors.New("h2: headers already sent")
	}
	return nil
}

func (ss *serverStream) writeHeader() {
	h := ss.w.Header()
	h.Set("Content-Type", contentType)
	mdToHeader(ss.headerMD, h)
	ss.w.WriteHeader(http.StatusOK)
	// Push the HEADERS frame out now; leading metadata must be visible
	// to the peer before the first message arrives.
	if f, ok := ss.w.(http.Flusher); ok {
		f.Flush()
	}
}

func (ss *serverStream) ReadChunk(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf := make([]byte, 32*1024)
	n, err := readChunkCtx(ctx, ss.r.Body, buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err != nil {
		return nil, err
	}
	return nil, nil
}

func (ss *serverStream) WriteChunk(ctx context.Context, p []byte) error {
	if ss.aborted.Load() {
		return errors.New("h2: stream reset")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ss.headerOnce.Do(ss.writeHeader)
	if _, err := ss.w.Write(p); err != nil {
		return err
	}
	if f, ok := ss.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

func (ss *serverStream) CloseWithTrailers(md metadata.MD) error {
	defer ss.finish()
	if ss.aborted.Load() {
		return errors.New("h2: stream reset")
	}
	ss.headerOnce.Do(ss.writeHeader)
	h := ss.w.Header()
	for k, vs := range md {
		key := http.TrailerPrefix + textproto.CanonicalMIMEHeaderKey(k)
		bin := metadata.IsBinaryKey(k)
		for _, v := range vs {
			if bin {
				v = metadata.EncodeBinaryValue([]byte(v))
			}
			h.Add(key, v)
		}
	}
	if f, ok := ss.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

func (ss *serverStream) Reset(err error) {
	ss.aborted.Store(true)
	ss.r.Body.Close()
	ss.finish()
}
