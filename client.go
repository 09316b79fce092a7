package gwire

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/gwirelabs/gwire/codes"
	"github.com/gwirelabs/gwire/metadata"
	"github.com/gwirelabs/gwire/protocol"
	"github.com/gwirelabs/gwire/stats"
	"github.com/gwirelabs/gwire/status"
	"github.com/gwirelabs/gwire/transport"
)

// Client issues calls over a ClientTransport. A Client is safe for
// concurrent use by multiple goroutines.
type Client struct {
	ct  transport.ClientTransport
	opt *clientOption
}

// NewClient wraps ct in a call-issuing client.
func NewClient(ct transport.ClientTransport, opts ...ClientOption) *Client {
	opt := defaultClientOption()
	for _, o := range opts {
		o(opt)
	}
	return &Client{ct: ct, opt: opt}
}

// Close tears down the underlying transport and every call in flight
// on it.
func (c *Client) Close() error {
	return c.ct.Close()
}

// NewStream opens a new call on the client's transport. The desc's
// stream flags select the call shape; directions not marked streaming
// carry exactly one message and the engine enforces that before any
// bytes reach the wire.
func (c *Client) NewStream(ctx context.Context, desc *StreamDesc, method string, opts ...CallOption) (ClientStream, error) {
	ci := c.newCallInfo(opts)

	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set("user-agent", userAgent)
	if ci.compressorName != "" && ci.compressorName != protocol.Identity {
		md.Set(protocol.EncodingKey, ci.compressorName)
	}
	if dl, ok := ctx.Deadline(); ok {
		md.Set(protocol.TimeoutKey, protocol.EncodeTimeout(time.Until(dl)))
	}

	if sh := c.opt.statsHandler; sh != nil {
		ctx = sh.TagRPC(ctx, &stats.RPCTagInfo{
			FullMethod:     method,
			IsClientStream: desc.ClientStreams,
			IsServerStream: desc.ServerStreams,
		})
	}

	ts, err := c.ct.NewStream(ctx, method, md)
	if err != nil {
		return nil, toStatus(ctx, err).Err()
	}

	core := newStreamCore(ctx, ci.codec, ci.maxRecvMsgSize, ci.maxSendMsgSize, c.opt.compressThreshold)
	if err := core.setEncoding(ci.compressorName); err != nil {
		ts.Reset(err)
		return nil, err
	}

	cs := &clientStream{
		core:      core,
		ts:        ts,
		desc:      desc,
		method:    method,
		sh:        c.opt.statsHandler,
		beginTime: time.Now(),
	}
	if cs.sh != nil {
		cs.sh.HandleRPC(ctx, &stats.Begin{
			Client:         true,
			BeginTime:      cs.beginTime,
			IsClientStream: desc.ClientStreams,
			IsServerStream: desc.ServerStreams,
		})
		cs.sh.HandleRPC(ctx, &stats.OutHeader{
			Client:      true,
			Header:      md,
			Compression: core.encoding,
			FullMethod:  method,
		})
	}
	return cs, nil
}

// unaryStreamDesc is the shape shared by all Invoke calls.
var unaryStreamDesc = &StreamDesc{ClientStreams: false, ServerStreams: false}

type clientStream struct {
	core   *streamCore
	ts     transport.ClientStream
	desc   *StreamDesc
	method string

	sh        stats.Handler
	beginTime time.Time

	mu         sync.Mutex
	sent       int
	recvd      int
	sendClosed bool
	headerDone bool
	finished   bool
	st         *status.Status
	trailerMD  metadata.MD
}

func (cs *clientStream) Context() context.Context { return cs.core.ctx }

func (cs *clientStream) Header() (metadata.MD, error) {
	md, err := cs.ts.Header(cs.core.ctx)
	if err != nil {
		return nil, cs.finishRecv(err)
	}
	cs.resolveHeader(md)
	return md, nil
}

// resolveHeader records the peer's advertised encoding the first time
// headers are seen.
func (cs *clientStream) resolveHeader(md metadata.MD) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.headerDone {
		return
	}
	cs.headerDone = true
	var enc string
	if vs := md.Get(protocol.EncodingKey); len(vs) > 0 {
		enc = vs[0]
	}
	cs.core.resolveRecvEncoding(enc)
	if cs.sh != nil {
		cs.sh.HandleRPC(cs.core.ctx, &stats.InHeader{
			Client:      true,
			Header:      md,
			Compression: enc,
			FullMethod:  cs.method,
		})
	}
}

func (cs *clientStream) Trailer() metadata.MD {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.trailerMD
}

func (cs *clientStream) SendMsg(m any) error {
	cs.mu.Lock()
	if cs.finished {
		st := cs.st
		cs.mu.Unlock()
		return st.Err()
	}
	if cs.sendClosed {
		cs.mu.Unlock()
		return status.New(codes.Internal, "gwire: SendMsg called after CloseSend").Err()
	}
	if !cs.desc.ClientStreams && cs.sent >= 1 {
		cs.mu.Unlock()
		return status.New(codes.Internal, "gwire: cardinality violation: second request on a unary send direction").Err()
	}
	cs.sent++
	cs.mu.Unlock()

	wireLen, msgLen, err := cs.core.writeFrame(cs.ts, m)
	if err != nil {
		// The peer may have already finished the call; if its trailers are
		// in hand the caller learns the real status from RecvMsg.
		if _, ok := cs.ts.Trailer(); ok {
			return io.EOF
		}
		return cs.finishRecv(err)
	}
	if cs.sh != nil {
		cs.sh.HandleRPC(cs.core.ctx, &stats.OutPayload{
			Client:           true,
			Payload:          m,
			Length:           msgLen,
			CompressedLength: wireLen,
			WireLength:       wireLen + protocol.EnvelopeSize,
			SentTime:         time.Now(),
		})
	}
	return nil
}

func (cs *clientStream) RecvMsg(m any) error {
	cs.mu.Lock()
	headerDone := cs.headerDone
	cs.mu.Unlock()
	if !headerDone {
		md, err := cs.ts.Header(cs.core.ctx)
		if err != nil {
			return cs.finishRecv(err)
		}
		cs.resolveHeader(md)
	}

	cs.mu.Lock()
	if cs.finished {
		st := cs.st
		cs.mu.Unlock()
		if st.Code() == codes.OK {
			return io.EOF
		}
		return st.Err()
	}
	if !cs.desc.ServerStreams && cs.recvd >= 1 {
		cs.mu.Unlock()
		// A well-formed peer closes after one response; read on so a clean
		// end resolves normally while an extra frame surfaces the violation.
		_, err := cs.core.readFrame(cs.ts)
		if err == io.EOF {
			return cs.finishEnd()
		}
		if err != nil {
			return cs.finishRecv(err)
		}
		return cs.finishRecv(status.New(codes.Internal,
			"gwire: cardinality violation: second response on a unary receive direction").Err())
	}
	cs.mu.Unlock()

	f, err := cs.core.readFrame(cs.ts)
	if err == io.EOF {
		return cs.finishEnd()
	}
	if err != nil {
		return cs.finishRecv(err)
	}
	if err := cs.core.decode(f, m); err != nil {
		return cs.finishRecv(err)
	}

	cs.mu.Lock()
	cs.recvd++
	cs.mu.Unlock()
	if cs.sh != nil {
		cs.sh.HandleRPC(cs.core.ctx, &stats.InPayload{
			Client:           true,
			Payload:          m,
			CompressedLength: len(f.Payload),
			WireLength:       len(f.Payload) + protocol.EnvelopeSize,
			RecvTime:         time.Now(),
		})
	}
	return nil
}

func (cs *clientStream) CloseSend() error {
	cs.mu.Lock()
	if cs.sendClosed || cs.finished {
		cs.mu.Unlock()
		return nil
	}
	if !cs.desc.ClientStreams && cs.sent == 0 {
		cs.mu.Unlock()
		return cs.finishRecv(status.New(codes.Internal,
			"gwire: cardinality violation: no request on a unary send direction").Err())
	}
	cs.sendClosed = true
	cs.mu.Unlock()
	if err := cs.ts.CloseSend(); err != nil {
		return cs.finishRecv(err)
	}
	return nil
}

// finishEnd resolves the call after a clean end of the response body:
// the status comes from the trailers. A clean end without a status
// trailer is itself an error.
func (cs *clientStream) finishEnd() error {
	md, ok := cs.ts.Trailer()
	if !ok {
		return cs.finish(status.New(codes.Unknown, "gwire: stream ended without a status"), nil)
	}
	st, hasStatus := protocol.StatusFromTrailer(md)
	if !hasStatus {
		return cs.finish(status.New(codes.Unknown, "gwire: stream trailers missing grpc-status"), md)
	}
	if !cs.desc.ServerStreams && cs.recvdCount() == 0 && st.Code() == codes.OK {
		return cs.finish(status.New(codes.Internal,
			"gwire: cardinality violation: no response on a unary receive direction"), md)
	}
	return cs.finish(st, md)
}

// finishRecv resolves the call after a transport or decode failure,
// resetting the stream so the peer stops sending.
func (cs *clientStream) finishRecv(err error) error {
	// Trailers already buffered take precedence over the failure.
	if md, ok := cs.ts.Trailer(); ok {
		if st, hasStatus := protocol.StatusFromTrailer(md); hasStatus {
			return cs.finish(st, md)
		}
	}
	st := toStatus(cs.core.ctx, err)
	cs.ts.Reset(st.Err())
	return cs.finish(st, nil)
}

func (cs *clientStream) finish(st *status.Status, trailer metadata.MD) error {
	cs.mu.Lock()
	if cs.finished {
		st = cs.st
		cs.mu.Unlock()
		if st.Code() == codes.OK {
			return io.EOF
		}
		return st.Err()
	}
	cs.finished = true
	cs.st = st
	cs.trailerMD = trailer
	cs.mu.Unlock()

	if cs.sh != nil {
		if trailer != nil {
			cs.sh.HandleRPC(cs.core.ctx, &stats.InTrailer{Client: true, Trailer: trailer})
		}
		var errForStats error
		if st.Code() != codes.OK {
			errForStats = st.Err()
		}
		cs.sh.HandleRPC(cs.core.ctx, &stats.End{
			Client:    true,
			BeginTime: cs.beginTime,
			EndTime:   time.Now(),
			Error:     errForStats,
		})
	}
	if st.Code() == codes.OK {
		return io.EOF
	}
	return st.Err()
}

func (cs *clientStream) recvdCount() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.recvd
}
