package metadata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairs(t *testing.T) {
	md := Pairs("k1", "v1", "K2", "v2", "k1", "v3")
	assert.Equal(t, []string{"v1", "v3"}, md.Get("k1"))
	assert.Equal(t, []string{"v2"}, md.Get("k2"), "keys are lowercased")
	assert.Equal(t, 2, md.Len())
}

func TestCopyIsDeep(t *testing.T) {
	md := Pairs("k", "v")
	cp := md.Copy()
	cp.Append("k", "v2")
	assert.Equal(t, []string{"v"}, md.Get("k"))
	assert.Equal(t, []string{"v", "v2"}, cp.Get("k"))
}

func TestSetAppendDelete(t *testing.T) {
	md := MD{}
	md.Set("K", "a")
	md.Append("k", "b")
	assert.Equal(t, []string{"a", "b"}, md.Get("k"))

	md.Set("k", "only")
	assert.Equal(t, []string{"only"}, md.Get("k"))

	md.Delete("K")
	assert.Empty(t, md.Get("k"))
}

func TestJoin(t *testing.T) {
	md := Join(Pairs("a", "1"), Pairs("a", "2", "b", "3"), nil)
	assert.Equal(t, []string{"1", "2"}, md.Get("a"))
	assert.Equal(t, []string{"3"}, md.Get("b"))
}

func TestBinaryKeys(t *testing.T) {
	assert.True(t, IsBinaryKey("token-bin"))
	assert.False(t, IsBinaryKey("token"))
	assert.False(t, IsBinaryKey("binary"))

	raw := []byte{0x00, 0xff, 0x7f, 0x10}
	enc := EncodeBinaryValue(raw)
	dec, err := DecodeBinaryValue(enc)
	require.NoError(t, err)
	assert.Equal(t, raw, dec)

	// unpadded values must decode too
	dec, err = DecodeBinaryValue("aGVsbG8")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), dec)
}

func TestOutgoingContext(t *testing.T) {
	ctx := NewOutgoingContext(context.Background(), Pairs("k", "v"))
	ctx = AppendToOutgoingContext(ctx, "k", "v2", "extra", "e")

	md, ok := FromOutgoingContext(ctx)
	require.True(t, ok)
	assert.Equal(t, []string{"v", "v2"}, md.Get("k"))
	assert.Equal(t, []string{"e"}, md.Get("extra"))

	_, ok = FromOutgoingContext(context.Background())
	assert.False(t, ok)
}

func TestIncomingContext(t *testing.T) {
	in := Pairs("auth", "token")
	ctx := NewIncomingContext(context.Background(), in)

	md, ok := FromIncomingContext(ctx)
	require.True(t, ok)
	assert.Equal(t, []string{"token"}, md.Get("auth"))

	// incoming and outgoing metadata never mix
	_, ok = FromOutgoingContext(ctx)
	assert.False(t, ok)
}
