// Package peer carries the transport-level identity of the remote party
// of an RPC through the handler's context.
package peer

import (
	"context"
	"net"
)

// Peer describes the remote end of the stream an RPC arrived on.
type Peer struct {
	// Addr is the peer address as reported by the transport.
	Addr net.Addr
}

func (p *Peer) String() string {
	if p == nil || p.Addr == nil {
		return "Peer<unknown>"
	}
	return "Peer{" + p.Addr.Network() + ":" + p.Addr.String() + "}"
}

type peerKey struct{}

// NewContext creates a new context with peer information attached.
func NewContext(ctx context.Context, p *Peer) context.Context {
	return context.WithValue(ctx, peerKey{}, p)
}

// FromContext returns the peer information in ctx if it exists. It is
// populated by the engine before a handler runs, for transports that
// report a remote address.
func FromContext(ctx context.Context) (*Peer, bool) {
	p, ok := ctx.Value(peerKey{}).(*Peer)
	return p, ok
}
