package status

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwirelabs/gwire/codes"
	"github.com/gwirelabs/gwire/metadata"
)

func TestNewAndErr(t *testing.T) {
	st := New(codes.NotFound, "missing")
	assert.Equal(t, codes.NotFound, st.Code())
	assert.Equal(t, "missing", st.Message())

	err := st.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NotFound")
	assert.Contains(t, err.Error(), "missing")

	assert.NoError(t, New(codes.OK, "").Err(), "OK carries no error")
}

func TestFromError(t *testing.T) {
	orig := Errorf(codes.PermissionDenied, "user %s", "bob")
	st, ok := FromError(orig)
	require.True(t, ok)
	assert.Equal(t, codes.PermissionDenied, st.Code())
	assert.Equal(t, "user bob", st.Message())

	// wrapping preserves the status
	wrapped := fmt.Errorf("outer: %w", orig)
	st, ok = FromError(wrapped)
	require.True(t, ok)
	assert.Equal(t, codes.PermissionDenied, st.Code())

	st, ok = FromError(errors.New("plain"))
	assert.False(t, ok)
	assert.Equal(t, codes.Unknown, st.Code())
	assert.Equal(t, "plain", st.Message())

	st, ok = FromError(nil)
	assert.True(t, ok)
	assert.Nil(t, st)
}

func TestCode(t *testing.T) {
	assert.Equal(t, codes.OK, Code(nil))
	assert.Equal(t, codes.Aborted, Code(Error(codes.Aborted, "x")))
	assert.Equal(t, codes.Unknown, Code(errors.New("x")))
}

func TestFromContextError(t *testing.T) {
	assert.Equal(t, codes.Canceled, FromContextError(context.Canceled).Code())
	assert.Equal(t, codes.DeadlineExceeded, FromContextError(context.DeadlineExceeded).Code())
	assert.Equal(t, codes.Unknown, FromContextError(errors.New("other")).Code())
}

func TestWithMetadata(t *testing.T) {
	st := New(codes.Aborted, "conflict")
	st2 := st.WithMetadata(metadata.Pairs("retry", "1"))

	assert.Zero(t, st.Metadata().Len(), "WithMetadata returns a derived status")
	assert.Equal(t, []string{"1"}, st2.Metadata().Get("retry"))
	assert.Equal(t, codes.Aborted, st2.Code())
}
