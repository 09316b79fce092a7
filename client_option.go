package gwire

import (
	"math"

	"github.com/gwirelabs/gwire/codec"
	"github.com/gwirelabs/gwire/protocol"
	"github.com/gwirelabs/gwire/stats"
)

const (
	defaultClientMaxReceiveMessageSize = 1024 * 1024 * 4
	defaultClientMaxSendMessageSize    = math.MaxInt32
)

type clientOption struct {
	codec             codec.Codec
	compressorName    string
	compressThreshold int
	maxRecvMsgSize    int
	maxSendMsgSize    int
	statsHandler      stats.Handler
}

// ClientOption configures a Client at construction time.
type ClientOption func(*clientOption)

func defaultClientOption() *clientOption {
	return &clientOption{
		codec:             codec.Default,
		compressThreshold: protocol.CompressThreshold,
		maxRecvMsgSize:    defaultClientMaxReceiveMessageSize,
		maxSendMsgSize:    defaultClientMaxSendMessageSize,
	}
}

// WithCodec sets the codec used to marshal and unmarshal messages on
// every call made by the client. The codec must have been registered
// with the codec package.
func WithCodec(name string) ClientOption {
	return func(o *clientOption) {
		if c := codec.GetCodec(name); c != nil {
			o.codec = c
		}
	}
}

// WithCompressor sets the message compressor advertised and used for
// outbound messages on every call made by the client.
func WithCompressor(name string) ClientOption {
	return func(o *clientOption) {
		o.compressorName = name
	}
}

// WithCompressThreshold sets the minimum message size, in bytes, at
// which outbound messages are considered for compression.
func WithCompressThreshold(n int) ClientOption {
	return func(o *clientOption) {
		o.compressThreshold = n
	}
}

// WithMaxRecvMsgSize sets the maximum message size, in bytes, the
// client can receive.
func WithMaxRecvMsgSize(n int) ClientOption {
	return func(o *clientOption) {
		o.maxRecvMsgSize = n
	}
}

// WithMaxSendMsgSize sets the maximum message size, in bytes, the
// client can send.
func WithMaxSendMsgSize(n int) ClientOption {
	return func(o *clientOption) {
		o.maxSendMsgSize = n
	}
}

// WithStatsHandler sets the handler notified of per-call lifecycle
// events on the client.
func WithStatsHandler(h stats.Handler) ClientOption {
	return func(o *clientOption) {
		o.statsHandler = h
	}
}

// callInfo carries the per-call overrides applied by CallOptions.
type callInfo struct {
	codec          codec.Codec
	compressorName string
	maxRecvMsgSize int
	maxSendMsgSize int
}

// CallOption configures a single call.
type CallOption func(*callInfo)

func (c *Client) newCallInfo(opts []CallOption) *callInfo {
	ci := &callInfo{
		codec:          c.opt.codec,
		compressorName: c.opt.compressorName,
		maxRecvMsgSize: c.opt.maxRecvMsgSize,
		maxSendMsgSize: c.opt.maxSendMsgSize,
	}
	for _, o := range opts {
		o(ci)
	}
	return ci
}

// UseCompressor overrides the compressor for one call.
func UseCompressor(name string) CallOption {
	return func(ci *callInfo) {
		ci.compressorName = name
	}
}

// CallCodec overrides the codec for one call. The codec must have been
// registered with the codec package.
func CallCodec(name string) CallOption {
	return func(ci *callInfo) {
		if c := codec.GetCodec(name); c != nil {
			ci.codec = c
		}
	}
}

// MaxCallRecvMsgSize overrides the maximum receivable message size for
// one call.
func MaxCallRecvMsgSize(n int) CallOption {
	return func(ci *callInfo) {
		ci.maxRecvMsgSize = n
	}
}

// MaxCallSendMsgSize overrides the maximum sendable message size for
// one call.
func MaxCallSendMsgSize(n int) CallOption {
	return func(ci *callInfo) {
		ci.maxSendMsgSize = n
	}
}
