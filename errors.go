package gwire

import (
	"context"
	"errors"
	"io"

	"github.com/gwirelabs/gwire/codec"
	"github.com/gwirelabs/gwire/codes"
	"github.com/gwirelabs/gwire/protocol"
	"github.com/gwirelabs/gwire/status"
)

// toStatus maps an arbitrary error raised while moving bytes into the
// status that terminates the call. Errors that already carry a status
// pass through unchanged; everything else is classified by its layer:
// framing and decoding problems are the peer's fault or ours and map
// onto Internal (or ResourceExhausted for an oversized frame), context
// expiry maps onto the caller's own cancellation codes, and whatever
// remains is blamed on the transport.
func toStatus(ctx context.Context, err error) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}
	if st, ok := status.FromError(err); ok {
		return st
	}

	var fe *protocol.FramingError
	if errors.As(err, &fe) {
		switch fe.Kind {
		case protocol.FrameTooLarge:
			return status.New(codes.ResourceExhausted, fe.Error())
		default:
			return status.New(codes.Internal, fe.Error())
		}
	}
	var de *codec.DecodeError
	if errors.As(err, &de) {
		return status.New(codes.Internal, de.Error())
	}

	if err == io.ErrUnexpectedEOF {
		return status.New(codes.Internal, err.Error())
	}
	if ctx.Err() != nil {
		return status.FromContextError(ctx.Err())
	}
	if err == context.Canceled || err == context.DeadlineExceeded {
		return status.FromContextError(err)
	}
	return status.New(codes.Unavailable, err.Error())
}

// handlerStatus maps the error returned by an application handler into
// the status sent to the client. Unlike toStatus, plain errors here
// default to Unknown: the handler failed for a reason the engine
// cannot classify.
func handlerStatus(err error) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}
	if st, ok := status.FromError(err); ok {
		return st
	}
	if err == context.Canceled || err == context.DeadlineExceeded {
		return status.FromContextError(err)
	}
	return status.New(codes.Unknown, err.Error())
}
