package gwire

import (
	"math"

	"github.com/gwirelabs/gwire/codec"
	"github.com/gwirelabs/gwire/protocol"
	"github.com/gwirelabs/gwire/stats"
)

const (
	defaultServerMaxReceiveMessageSize = 1024 * 1024 * 4
	defaultServerMaxSendMessageSize    = math.MaxInt32
)

type serverOption struct {
	codec             codec.Codec
	compressorName    string
	compressThreshold int
	maxRecvMsgSize    int
	maxSendMsgSize    int
	statsHandler      stats.Handler
}

// ServerOption configures a Server at construction time.
type ServerOption func(*serverOption)

func defaultServerOption() *serverOption {
	return &serverOption{
		codec:             codec.Default,
		compressThreshold: protocol.CompressThreshold,
		maxRecvMsgSize:    defaultServerMaxReceiveMessageSize,
		maxSendMsgSize:    defaultServerMaxSendMessageSize,
	}
}

// ServerCodec sets the codec used to marshal and unmarshal messages on
// every call handled by the server. The codec must have been
// registered with the codec package.
func ServerCodec(name string) ServerOption {
	return func(o *serverOption) {
		if c := codec.GetCodec(name); c != nil {
			o.codec = c
		}
	}
}

// ServerCompressor sets the message compressor advertised and used for
// responses sent by the server.
func ServerCompressor(name string) ServerOption {
	return func(o *serverOption) {
		o.compressorName = name
	}
}

// ServerCompressThreshold sets the minimum message size, in bytes, at
// which responses are considered for compression.
func ServerCompressThreshold(n int) ServerOption {
	return func(o *serverOption) {
		o.compressThreshold = n
	}
}

// MaxRecvMsgSize sets the maximum message size, in bytes, the server
// can receive.
func MaxRecvMsgSize(n int) ServerOption {
	return func(o *serverOption) {
		o.maxRecvMsgSize = n
	}
}

// MaxSendMsgSize sets the maximum message size, in bytes, the server
// can send.
func MaxSendMsgSize(n int) ServerOption {
	return func(o *serverOption) {
		o.maxSendMsgSize = n
	}
}

// StatsHandler sets the handler notified of per-call lifecycle events
// on the server.
func StatsHandler(h stats.Handler) ServerOption {
	return func(o *serverOption) {
		o.statsHandler = h
	}
}
