package pipe

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwirelabs/gwire/metadata"
	"github.com/gwirelabs/gwire/transport"
)

func TestStreamCarriesMethodAndMetadata(t *testing.T) {
	p := New()
	defer p.Close()

	ch := make(chan transport.ServerStream, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Listener().HandleStreams(ctx, func(ss transport.ServerStream) { ch <- ss })

	_, err := p.Client().NewStream(ctx, "/svc/Method", metadata.Pairs("k", "v"))
	require.NoError(t, err)

	ss := <-ch
	assert.Equal(t, "/svc/Method", ss.Method())
	assert.Equal(t, []string{"v"}, ss.Header().Get("k"))
}

func TestChunksArriveInOrder(t *testing.T) {
	p := New()
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := make(chan transport.ServerStream, 1)
	go p.Listener().HandleStreams(ctx, func(ss transport.ServerStream) { ch <- ss })

	cs, err := p.Client().NewStream(ctx, "/svc/M", nil)
	require.NoError(t, err)
	ss := <-ch

	require.NoError(t, cs.WriteChunk(ctx, []byte("one")))
	require.NoError(t, cs.WriteChunk(ctx, []byte("two")))
	require.NoError(t, cs.CloseSend())

	var got []string
	for {
		chunk, err := ss.ReadChunk(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, string(chunk))
	}
	assert.Equal(t, []string{"one", "two"}, got)
}

func TestWriteBlocksOnFullWindow(t *testing.T) {
	p := New(WithWindow(8))
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := make(chan transport.ServerStream, 1)
	go p.Listener().HandleStreams(ctx, func(ss transport.ServerStream) { ch <- ss })

	cs, err := p.Client().NewStream(ctx, "/svc/M", nil)
	require.NoError(t, err)
	ss := <-ch

	// The first write always lands, even above the window.
	require.NoError(t, cs.WriteChunk(ctx, []byte("0123456789")))

	wctx, wcancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer wcancel()
	err = cs.WriteChunk(wctx, []byte("x"))
	assert.ErrorIs(t, err, context.DeadlineExceeded, "second write must block while the window is full")

	// Draining the queue releases the writer.
	_, err = ss.ReadChunk(ctx)
	require.NoError(t, err)
	require.NoError(t, cs.WriteChunk(ctx, []byte("x")))
}

func TestHeadersUnblockWaiter(t *testing.T) {
	p := New()
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := make(chan transport.ServerStream, 1)
	go p.Listener().HandleStreams(ctx, func(ss transport.ServerStream) { ch <- ss })

	cs, err := p.Client().NewStream(ctx, "/svc/M", nil)
	require.NoError(t, err)
	ss := <-ch

	done := make(chan metadata.MD, 1)
	go func() {
		md, err := cs.Header(ctx)
		if err == nil {
			done <- md
		}
	}()

	require.NoError(t, ss.SendHeader(metadata.Pairs("h", "1")))
	md := <-done
	assert.Equal(t, []string{"1"}, md.Get("h"))
}

func TestTrailersDeliveredWithEOF(t *testing.T) {
	p := New()
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := make(chan transport.ServerStream, 1)
	go p.Listener().HandleStreams(ctx, func(ss transport.ServerStream) { ch <- ss })

	cs, err := p.Client().NewStream(ctx, "/svc/M", nil)
	require.NoError(t, err)
	ss := <-ch

	require.NoError(t, ss.WriteChunk(ctx, []byte("body")))
	require.NoError(t, ss.CloseWithTrailers(metadata.Pairs("grpc-status", "0")))

	_, ok := cs.Trailer()
	assert.True(t, ok, "trailers are visible as soon as they are buffered")

	chunk, err := cs.ReadChunk(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("body"), chunk)

	_, err = cs.ReadChunk(ctx)
	require.ErrorIs(t, err, io.EOF)

	md, ok := cs.Trailer()
	require.True(t, ok)
	assert.Equal(t, []string{"0"}, md.Get("grpc-status"))
}

func TestResetFailsBothDirections(t *testing.T) {
	p := New()
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := make(chan transport.ServerStream, 1)
	go p.Listener().HandleStreams(ctx, func(ss transport.ServerStream) { ch <- ss })

	cs, err := p.Client().NewStream(ctx, "/svc/M", nil)
	require.NoError(t, err)
	ss := <-ch

	require.NoError(t, ss.WriteChunk(ctx, []byte("queued")))
	boom := errors.New("boom")
	cs.Reset(boom)

	_, err = cs.ReadChunk(ctx)
	assert.ErrorIs(t, err, boom, "queued chunks are dropped on reset")
	_, err = ss.ReadChunk(ctx)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, cs.WriteChunk(ctx, []byte("x")), boom)
}

// A reset arriving after the peer already buffered its trailers must not
// erase the delivered termination.
func TestBufferedTrailersWinOverReset(t *testing.T) {
	p := New()
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := make(chan transport.ServerStream, 1)
	go p.Listener().HandleStreams(ctx, func(ss transport.ServerStream) { ch <- ss })

	cs, err := p.Client().NewStream(ctx, "/svc/M", nil)
	require.NoError(t, err)
	ss := <-ch

	require.NoError(t, ss.CloseWithTrailers(metadata.Pairs("grpc-status", "0")))
	cs.Reset(errors.New("late reset"))

	_, err = cs.ReadChunk(ctx)
	assert.ErrorIs(t, err, io.EOF, "clean end survives a later reset")
	md, ok := cs.Trailer()
	require.True(t, ok)
	assert.Equal(t, []string{"0"}, md.Get("grpc-status"))
}

func TestNewStreamAfterClose(t *testing.T) {
	p := New()
	p.Close()
	_, err := p.Client().NewStream(context.Background(), "/svc/M", nil)
	assert.ErrorIs(t, err, ErrClosed)
}
