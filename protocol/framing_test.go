package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwirelabs/gwire/mem"
)

func TestAppendFrameWireFormat(t *testing.T) {
	got := AppendFrame(nil, false, []byte("abc"))
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x00, 0x03, 'a', 'b', 'c'}, got)

	got = AppendFrame(nil, true, []byte{0xff})
	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0x00, 0x01, 0xff}, got)

	got = AppendFrame(nil, false, nil)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x00, 0x00}, got)
}

func TestEncodeFrameMatchesAppendFrame(t *testing.T) {
	pool := mem.DefaultBufferPool()
	payload := []byte("hello world")

	buf := EncodeFrame(true, payload, pool)
	defer buf.Free()

	assert.Equal(t, AppendFrame(nil, true, payload), buf.ReadOnlyData())
}

func TestDecoderSingleFrame(t *testing.T) {
	var d Decoder
	frames, err := d.Push(AppendFrame(nil, false, []byte("abc")))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.False(t, frames[0].Compressed)
	assert.Equal(t, []byte("abc"), frames[0].Payload)
	assert.Zero(t, d.Buffered())
	require.NoError(t, d.Close())
}

func TestDecoderZeroLengthFrame(t *testing.T) {
	var d Decoder
	frames, err := d.Push([]byte{0x00, 0x00, 0x00, 0x00, 0x00})
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Empty(t, frames[0].Payload)
}

func TestDecoderMultipleFramesInOneChunk(t *testing.T) {
	wire := AppendFrame(nil, false, []byte("one"))
	wire = AppendFrame(wire, true, []byte("two"))
	wire = AppendFrame(wire, false, []byte("three"))

	var d Decoder
	frames, err := d.Push(wire)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Equal(t, []byte("one"), frames[0].Payload)
	assert.True(t, frames[1].Compressed)
	assert.Equal(t, []byte("two"), frames[1].Payload)
	assert.Equal(t, []byte("three"), frames[2].Payload)
}

// Chunk boundaries are a transport artifact; the decoded frame sequence
// must be identical no matter how the same bytes are split.
func TestDecoderChunkBoundaryInvariance(t *testing.T) {
	wire := AppendFrame(nil, false, []byte("first message"))
	wire = AppendFrame(wire, true, []byte("second"))
	wire = AppendFrame(wire, false, nil)

	splits := []int{1, 2, 3, 4, 5, 7, len(wire)}
	for _, n := range splits {
		var d Decoder
		var frames []Frame
		for i := 0; i < len(wire); i += n {
			end := i + n
			if end > len(wire) {
				end = len(wire)
			}
			fs, err := d.Push(wire[i:end])
			require.NoError(t, err, "chunk size %d", n)
			frames = append(frames, fs...)
		}
		require.NoError(t, d.Close(), "chunk size %d", n)

		require.Len(t, frames, 3, "chunk size %d", n)
		assert.Equal(t, []byte("first message"), frames[0].Payload)
		assert.True(t, frames[1].Compressed)
		assert.Equal(t, []byte("second"), frames[1].Payload)
		assert.Empty(t, frames[2].Payload)
	}
}

func TestDecoderEmptyChunkIsNoop(t *testing.T) {
	var d Decoder
	frames, err := d.Push(nil)
	require.NoError(t, err)
	assert.Empty(t, frames)

	frames, err = d.Push([]byte{})
	require.NoError(t, err)
	assert.Empty(t, frames)
}

func TestDecoderTruncatedStream(t *testing.T) {
	tests := []struct {
		name string
		wire []byte
	}{
		{"mid envelope", []byte{0x00, 0x00, 0x00}},
		{"mid payload", AppendFrame(nil, false, []byte("abc"))[:6]},
		{"complete frame then partial envelope", append(AppendFrame(nil, false, []byte("x")), 0x00, 0x00)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Decoder
			_, err := d.Push(tt.wire)
			require.NoError(t, err)

			err = d.Close()
			require.Error(t, err)
			var fe *FramingError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, TruncatedMessage, fe.Kind)

			// poisoned: every later call reports the same failure
			_, err2 := d.Push([]byte{0x00})
			assert.Equal(t, err, err2)
			assert.Equal(t, err, d.Close())
		})
	}
}

func TestDecoderFrameTooLarge(t *testing.T) {
	d := Decoder{MaxMessageSize: 16}
	_, err := d.Push(AppendFrame(nil, false, make([]byte, 17)))
	require.Error(t, err)
	var fe *FramingError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, FrameTooLarge, fe.Kind)
	assert.Equal(t, 17, fe.Size)
	assert.Equal(t, 16, fe.Limit)

	// The check fires on the envelope alone, before any payload arrives.
	d = Decoder{MaxMessageSize: 16}
	_, err = d.Push([]byte{0x00, 0xff, 0xff, 0xff, 0xff})
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, FrameTooLarge, fe.Kind)
}

func TestDecoderAtLimitIsAccepted(t *testing.T) {
	d := Decoder{MaxMessageSize: 16}
	frames, err := d.Push(AppendFrame(nil, false, make([]byte, 16)))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Len(t, frames[0].Payload, 16)
}

func TestDecoderPushAfterClose(t *testing.T) {
	var d Decoder
	require.NoError(t, d.Close())
	_, err := d.Push([]byte{0x00})
	require.Error(t, err)
}
