package gwire

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/gwirelabs/gwire/codes"
	"github.com/gwirelabs/gwire/status"
)

// Invoke performs a unary call: it sends req, half-closes, and waits
// for the single response and the terminal status. Send and receive
// run concurrently so a server that responds before draining the
// request cannot deadlock the call.
func (c *Client) Invoke(ctx context.Context, method string, req, reply any, opts ...CallOption) error {
	cs, err := c.NewStream(ctx, unaryStreamDesc, method, opts...)
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.Go(func() error {
		if err := cs.SendMsg(req); err != nil && err != io.EOF {
			return err
		}
		if err := cs.CloseSend(); err != nil && err != io.EOF {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := cs.RecvMsg(reply); err != nil {
			if err == io.EOF {
				return status.New(codes.Internal,
					"gwire: cardinality violation: no response on a unary receive direction").Err()
			}
			return err
		}
		// The next read must be the clean end of the stream.
		var extra any
		if err := cs.RecvMsg(&extra); err != io.EOF {
			return err
		}
		return nil
	})
	return g.Wait()
}
