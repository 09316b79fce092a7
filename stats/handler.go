// Package stats defines the hooks through which the engine reports
// per-RPC events, and a latency aggregator built on top of them.
package stats

import (
	"context"
	"time"
)

// Handler defines the interface for RPC stats collection.
type Handler interface {
	// TagRPC can attach some information to the given context.
	// The context used for the rest lifetime of the RPC will be derived
	// from the returned context.
	TagRPC(ctx context.Context, info *RPCTagInfo) context.Context
	// HandleRPC processes the RPC stats.
	HandleRPC(ctx context.Context, stats RPCStats)
}

// RPCStats contains stats information about RPCs.
type RPCStats interface {
	// IsClient returns true if this RPCStats is from client side.
	IsClient() bool
}

// RPCTagInfo defines the relevant information needed by RPC context tagger.
type RPCTagInfo struct {
	// FullMethod is the RPC method in the format of /service/method.
	FullMethod string
	// IsClientStream indicates whether the RPC is a client streaming RPC.
	IsClientStream bool
	// IsServerStream indicates whether the RPC is a server streaming RPC.
	IsServerStream bool
}

// Begin contains stats when an RPC begins.
type Begin struct {
	// Client is true if this Begin is from client side.
	Client bool
	// BeginTime is the time when the RPC begins.
	BeginTime time.Time
	// IsClientStream indicates whether the RPC is a client streaming RPC.
	IsClientStream bool
	// IsServerStream indicates whether the RPC is a server streaming RPC.
	IsServerStream bool
}

// IsClient indicates if this is from client side.
func (s *Begin) IsClient() bool { return s.Client }

// InPayload contains the information for an incoming payload.
type InPayload struct {
	// Client is true if this InPayload is from client side.
	Client bool
	// Payload is the payload with original type.
	Payload any
	// Length is the length of uncompressed data.
	Length int
	// CompressedLength is the length of compressed data.
	CompressedLength int
	// WireLength is the length of data on wire (envelope included).
	WireLength int
	// RecvTime is the time when the payload is received.
	RecvTime time.Time
}

// IsClient indicates if this is from client side.
func (s *InPayload) IsClient() bool { return s.Client }

// OutPayload contains the information for an outgoing payload.
type OutPayload struct {
	// Client is true if this OutPayload is from client side.
	Client bool
	// Payload is the payload with original type.
	Payload any
	// Length is the length of uncompressed data.
	Length int
	// CompressedLength is the length of compressed data.
	CompressedLength int
	// WireLength is the length of data on wire (envelope included).
	WireLength int
	// SentTime is the time when the payload is sent.
	SentTime time.Time
}

// IsClient indicates if this is from client side.
func (s *OutPayload) IsClient() bool { return s.Client }

// InHeader contains stats when a header is received.
type InHeader struct {
	// Client is true if this InHeader is from client side.
	Client bool
	// Header contains the header metadata received.
	Header map[string][]string
	// Compression is the compression algorithm used for the RPC.
	Compression string
	// FullMethod is the full RPC method string, i.e., /service/method.
	FullMethod string
}

// IsClient indicates if this is from client side.
func (s *InHeader) IsClient() bool { return s.Client }

// OutHeader contains stats when a header is sent.
type OutHeader struct {
	// Client is true if this OutHeader is from client side.
	Client bool
	// Header contains the header metadata sent.
	Header map[string][]string
	// Compression is the compression algorithm used for the RPC.
	Compression string
	// FullMethod is the full RPC method string, i.e., /service/method.
	FullMethod string
}

// IsClient indicates if this is from client side.
func (s *OutHeader) IsClient() bool { return s.Client }

// InTrailer contains stats when a trailer is received.
type InTrailer struct {
	// Client is true if this InTrailer is from client side.
	Client bool
	// Trailer contains the trailer metadata received from the server.
	Trailer map[string][]string
}

// IsClient indicates if this is from client side.
func (s *InTrailer) IsClient() bool { return s.Client }

// OutTrailer contains stats when a trailer is sent.
type OutTrailer struct {
	// Client is true if this OutTrailer is from client side.
	Client bool
	// Trailer contains the trailer metadata sent to the client.
	Trailer map[string][]string
}

// IsClient indicates if this is from client side.
func (s *OutTrailer) IsClient() bool { return s.Client }

// End contains stats when an RPC ends.
type End struct {
	// Client is true if this End is from client side.
	Client bool
	// BeginTime is the time when the RPC began.
	BeginTime time.Time
	// EndTime is the time when the RPC ends.
	EndTime time.Time
	// Error is the error the RPC ended with. It is an error generated
	// from status.Status and can be converted back using
	// status.FromError if non-nil.
	Error error
}

// IsClient indicates if this is from client side.
func (s *End) IsClient() bool { return s.Client }
