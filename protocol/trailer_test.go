package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwirelabs/gwire/codes"
	"github.com/gwirelabs/gwire/metadata"
	"github.com/gwirelabs/gwire/status"
)

func TestStatusTrailerRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		st   *status.Status
	}{
		{"ok", status.New(codes.OK, "")},
		{"not found", status.New(codes.NotFound, "no such row")},
		{"message needing escaping", status.New(codes.Internal, "bad value: 100%\nретри")},
		{"max code", status.New(codes.Unauthenticated, "who are you")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := StatusToTrailer(tt.st)
			got, ok := StatusFromTrailer(md)
			require.True(t, ok)
			assert.Equal(t, tt.st.Code(), got.Code())
			assert.Equal(t, tt.st.Message(), got.Message())
		})
	}
}

func TestStatusToTrailerCarriesMetadata(t *testing.T) {
	st := status.New(codes.FailedPrecondition, "version skew").
		WithMetadata(metadata.Pairs("retry-after", "3", "grpc-status", "999"))

	md := StatusToTrailer(st)
	assert.Equal(t, []string{"9"}, md.Get(StatusKey), "reserved keys in status metadata must not leak into the trailer")
	assert.Equal(t, []string{"3"}, md.Get("retry-after"))

	got, ok := StatusFromTrailer(md)
	require.True(t, ok)
	assert.Equal(t, codes.FailedPrecondition, got.Code())
	assert.Equal(t, []string{"3"}, got.Metadata().Get("retry-after"))
}

func TestStatusFromTrailerMissingStatus(t *testing.T) {
	_, ok := StatusFromTrailer(metadata.MD{})
	assert.False(t, ok)

	_, ok = StatusFromTrailer(metadata.Pairs("grpc-message", "orphaned"))
	assert.False(t, ok)
}

func TestStatusFromTrailerMalformedCode(t *testing.T) {
	tests := []string{"abc", "-1", "17", "4294967296", ""}
	for _, raw := range tests {
		st, ok := StatusFromTrailer(metadata.Pairs(StatusKey, raw))
		require.True(t, ok, "raw %q", raw)
		assert.Equal(t, codes.Unknown, st.Code(), "raw %q", raw)
	}
}

func TestPercentEncode(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"plain ascii message", "plain ascii message"},
		{"50% done", "50%25 done"},
		{"line\nbreak", "line%0Abreak"},
		{"\x00", "%00"},
		{"über", "%C3%BCber"},
		{"~ tilde stays", "~ tilde stays"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PercentEncode(tt.in), "input %q", tt.in)
		assert.Equal(t, tt.in, PercentDecode(tt.want), "input %q", tt.in)
	}
}

func TestPercentDecodeInvalidEscapes(t *testing.T) {
	// Garbled escapes must not fail: the message rides alongside a status
	// code that matters more than it does.
	assert.Equal(t, "a�z", PercentDecode("a%zzz"))
	assert.Equal(t, "trailing%", PercentDecode("trailing%"))
	assert.Equal(t, "short%2", PercentDecode("short%2"))
}
