package gwire

import (
	"context"
	"io"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gwirelabs/gwire/codes"
	"github.com/gwirelabs/gwire/metadata"
	"github.com/gwirelabs/gwire/peer"
	"github.com/gwirelabs/gwire/protocol"
	"github.com/gwirelabs/gwire/stats"
	"github.com/gwirelabs/gwire/status"
	"github.com/gwirelabs/gwire/transport"
)

// Server dispatches streams accepted from one or more ServerTransports
// to registered service handlers.
type Server struct {
	opt *serverOption

	mu         sync.Mutex
	serve      bool
	services   map[string]*serviceInfo
	transports map[transport.ServerTransport]struct{}
	done       chan struct{}

	serveWG sync.WaitGroup
}

// NewServer creates a Server with no registered services.
func NewServer(opts ...ServerOption) *Server {
	opt := defaultServerOption()
	for _, o := range opts {
		o(opt)
	}
	return &Server{
		opt:        opt,
		services:   make(map[string]*serviceInfo),
		transports: make(map[transport.ServerTransport]struct{}),
		done:       make(chan struct{}),
	}
}

// Serve accepts streams from st and dispatches them until ctx is done,
// the transport fails, or the server is stopped. It blocks; run one
// Serve per transport.
func (s *Server) Serve(ctx context.Context, st transport.ServerTransport) error {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return ErrServerStopped
	default:
	}
	s.serve = true
	s.transports[st] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.transports, st)
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	// The WaitGroup is bumped on the transport's dispatch path, before
	// the stream's goroutine starts, so Stop cannot slip past a stream
	// that has been accepted but not yet handled.
	err := st.HandleStreams(ctx, func(ts transport.ServerStream) {
		s.serveWG.Add(1)
		go func() {
			defer s.serveWG.Done()
			s.handleStream(ctx, ts)
		}()
	})
	s.serveWG.Wait()
	return err
}

// Stop closes the server's transports, terminating in-flight calls,
// and waits for their handlers to return.
func (s *Server) Stop() {
	s.mu.Lock()
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	for st := range s.transports {
		st.Close()
	}
	s.mu.Unlock()
	s.serveWG.Wait()
}

// ErrServerStopped is returned by Serve after Stop has been called.
var ErrServerStopped = status.New(codes.Unavailable, "gwire: the server has been stopped").Err()

func (s *Server) handleStream(ctx context.Context, ts transport.ServerStream) {
	method := ts.Method()
	clientMD := ts.Header()

	service, mname, err := parseMethod(method)
	if err != nil {
		s.finishStream(ts, status.Newf(codes.Unimplemented, "gwire: malformed method name %q", method), nil, nil, nil)
		return
	}

	ctx = metadata.NewIncomingContext(ctx, clientMD)
	if pi, ok := ts.(transport.PeerInfo); ok {
		ctx = peer.NewContext(ctx, &peer.Peer{Addr: pi.Peer()})
	}
	if vs := clientMD.Get(protocol.TimeoutKey); len(vs) > 0 {
		if to, perr := protocol.ParseTimeout(vs[0]); perr == nil {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, to)
			defer cancel()
		}
	}

	s.mu.Lock()
	info, ok := s.services[service]
	s.mu.Unlock()
	if !ok {
		s.finishStream(ts, status.Newf(codes.Unimplemented, "gwire: unknown service %s", service), nil, nil, nil)
		return
	}

	if d, ok := info.methods[mname]; ok {
		s.processRPC(ctx, ts, info, method, &StreamDesc{StreamName: mname}, unaryHandler(d))
		return
	}
	if d, ok := info.streams[mname]; ok {
		s.processRPC(ctx, ts, info, method, d, d.Handler)
		return
	}
	s.finishStream(ts, status.Newf(codes.Unimplemented, "gwire: unknown method %s for service %s", mname, service), nil, nil, nil)
}

// unaryHandler adapts a MethodDesc into the streaming shape: decode
// exactly one request, run the handler, send the single response.
func unaryHandler(md *MethodDesc) StreamHandler {
	return func(srv any, stream ServerStream) error {
		dec := func(m any) error {
			if err := stream.RecvMsg(m); err != nil {
				if err == io.EOF {
					return status.New(codes.Internal,
						"gwire: cardinality violation: no request on a unary receive direction").Err()
				}
				return err
			}
			return nil
		}
		reply, err := md.Handler(srv, stream.Context(), dec)
		if err != nil {
			return err
		}
		return stream.SendMsg(reply)
	}
}

func (s *Server) processRPC(ctx context.Context, ts transport.ServerStream, info *serviceInfo, method string, desc *StreamDesc, handler StreamHandler) {
	sh := s.opt.statsHandler
	beginTime := time.Now()
	if sh != nil {
		ctx = sh.TagRPC(ctx, &stats.RPCTagInfo{
			FullMethod:     method,
			IsClientStream: desc.ClientStreams,
			IsServerStream: desc.ServerStreams,
		})
		sh.HandleRPC(ctx, &stats.Begin{
			BeginTime:      beginTime,
			IsClientStream: desc.ClientStreams,
			IsServerStream: desc.ServerStreams,
		})
		sh.HandleRPC(ctx, &stats.InHeader{
			Header:     ts.Header(),
			FullMethod: method,
		})
	}

	core := newStreamCore(ctx, s.opt.codec, s.opt.maxRecvMsgSize, s.opt.maxSendMsgSize, s.opt.compressThreshold)
	var enc string
	if vs := ts.Header().Get(protocol.EncodingKey); len(vs) > 0 {
		enc = vs[0]
	}
	core.resolveRecvEncoding(enc)

	ss := &serverStream{
		core:   core,
		ts:     ts,
		desc:   desc,
		method: method,
		sh:     sh,
	}
	if err := core.setEncoding(s.opt.compressorName); err != nil {
		s.finishStream(ts, status.Convert(err), sh, ctx, &beginTime)
		return
	}

	st := s.runHandler(ctx, ss, info, handler)

	if !ss.headerSent && st.Code() != codes.OK {
		// Trailers-only response: no body was ever written.
		ss.headerSent = true
	} else if !ss.headerSent {
		ss.maybeSendHeader()
	}
	ss.mu.Lock()
	trailer := ss.trailerMD
	ss.mu.Unlock()
	s.finishStreamWithTrailer(ts, st, trailer, sh, ctx, &beginTime)
}

// runHandler invokes handler, converting a panic into an Internal
// status rather than tearing the process down.
func (s *Server) runHandler(ctx context.Context, ss *serverStream, info *serviceInfo, handler StreamHandler) (st *status.Status) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 64<<10)
			buf = buf[:runtime.Stack(buf, false)]
			zap.L().Error("gwire: recovered from handler panic",
				zap.String("method", ss.method),
				zap.Any("panic", r),
				zap.ByteString("stack", buf))
			st = status.Newf(codes.Internal, "gwire: handler panic: %v", r)
		}
	}()

	err := handler(info.serviceImpl, ss)
	if err != nil {
		return handlerStatus(err)
	}
	if !ss.desc.ServerStreams && ss.sentCount() == 0 {
		return status.New(codes.Internal,
			"gwire: cardinality violation: no response on a unary send direction")
	}
	if ctx.Err() != nil {
		return status.FromContextError(ctx.Err())
	}
	return status.New(codes.OK, "")
}

func (s *Server) finishStream(ts transport.ServerStream, st *status.Status, sh stats.Handler, ctx context.Context, begin *time.Time) {
	s.finishStreamWithTrailer(ts, st, nil, sh, ctx, begin)
}

func (s *Server) finishStreamWithTrailer(ts transport.ServerStream, st *status.Status, extra metadata.MD, sh stats.Handler, ctx context.Context, begin *time.Time) {
	trailer := protocol.StatusToTrailer(st)
	for k, vs := range extra {
		if k == protocol.StatusKey || k == protocol.MessageKey {
			continue
		}
		trailer.Set(k, vs...)
	}
	if err := ts.CloseWithTrailers(trailer); err != nil {
		ts.Reset(err)
	}
	if sh != nil && ctx != nil {
		sh.HandleRPC(ctx, &stats.OutTrailer{Trailer: trailer})
		var errForStats error
		if st.Code() != codes.OK {
			errForStats = st.Err()
		}
		end := &stats.End{EndTime: time.Now(), Error: errForStats}
		if begin != nil {
			end.BeginTime = *begin
		}
		sh.HandleRPC(ctx, end)
	}
}

// serverStream is the ServerStream implementation handed to handlers.
type serverStream struct {
	core   *streamCore
	ts     transport.ServerStream
	desc   *StreamDesc
	method string
	sh     stats.Handler

	mu         sync.Mutex
	sent       int
	recvd      int
	headerSent bool
	headerMD   metadata.MD
	trailerMD  metadata.MD
}

func (ss *serverStream) Context() context.Context { return ss.core.ctx }

func (ss *serverStream) SendHeader(md metadata.MD) error {
	ss.mu.Lock()
	if ss.headerSent {
		ss.mu.Unlock()
		return status.New(codes.Internal, "gwire: SendHeader called after headers were sent").Err()
	}
	ss.headerMD = metadata.Join(ss.headerMD, md)
	ss.mu.Unlock()
	return ss.maybeSendHeader()
}

// maybeSendHeader flushes the leading metadata once, stamping the
// negotiated encoding.
func (ss *serverStream) maybeSendHeader() error {
	ss.mu.Lock()
	if ss.headerSent {
		ss.mu.Unlock()
		return nil
	}
	ss.headerSent = true
	md := ss.headerMD
	ss.mu.Unlock()

	if md == nil {
		md = metadata.MD{}
	}
	if ss.core.encoding != "" && ss.core.encoding != protocol.Identity {
		md.Set(protocol.EncodingKey, ss.core.encoding)
	}
	if err := ss.ts.SendHeader(md); err != nil {
		return err
	}
	if ss.sh != nil {
		ss.sh.HandleRPC(ss.core.ctx, &stats.OutHeader{
			Header:      md,
			Compression: ss.core.encoding,
			FullMethod:  ss.method,
		})
	}
	return nil
}

func (ss *serverStream) SetTrailer(md metadata.MD) {
	ss.mu.Lock()
	ss.trailerMD = metadata.Join(ss.trailerMD, md)
	ss.mu.Unlock()
}

func (ss *serverStream) SendMsg(m any) error {
	ss.mu.Lock()
	if !ss.desc.ServerStreams && ss.sent >= 1 {
		ss.mu.Unlock()
		return status.New(codes.Internal,
			"gwire: cardinality violation: second response on a unary send direction").Err()
	}
	ss.sent++
	ss.mu.Unlock()

	if err := ss.maybeSendHeader(); err != nil {
		return toStatus(ss.core.ctx, err).Err()
	}
	wireLen, msgLen, err := ss.core.writeFrame(ss.ts, m)
	if err != nil {
		return toStatus(ss.core.ctx, err).Err()
	}
	if ss.sh != nil {
		ss.sh.HandleRPC(ss.core.ctx, &stats.OutPayload{
			Payload:          m,
			Length:           msgLen,
			CompressedLength: wireLen,
			WireLength:       wireLen + protocol.EnvelopeSize,
			SentTime:         time.Now(),
		})
	}
	return nil
}

func (ss *serverStream) RecvMsg(m any) error {
	ss.mu.Lock()
	if !ss.desc.ClientStreams && ss.recvd >= 1 {
		ss.mu.Unlock()
		_, err := ss.core.readFrame(ss.ts)
		if err == io.EOF {
			return io.EOF
		}
		if err != nil {
			return toStatus(ss.core.ctx, err).Err()
		}
		return status.New(codes.Internal,
			"gwire: cardinality violation: second request on a unary receive direction").Err()
	}
	ss.mu.Unlock()

	f, err := ss.core.readFrame(ss.ts)
	if err == io.EOF {
		return io.EOF
	}
	if err != nil {
		return toStatus(ss.core.ctx, err).Err()
	}
	if err := ss.core.decode(f, m); err != nil {
		return toStatus(ss.core.ctx, err).Err()
	}

	ss.mu.Lock()
	ss.recvd++
	ss.mu.Unlock()
	if ss.sh != nil {
		ss.sh.HandleRPC(ss.core.ctx, &stats.InPayload{
			Payload:          m,
			CompressedLength: len(f.Payload),
			WireLength:       len(f.Payload) + protocol.EnvelopeSize,
			RecvTime:         time.Now(),
		})
	}
	return nil
}

func (ss *serverStream) sentCount() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.sent
}
