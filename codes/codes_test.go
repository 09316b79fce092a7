package codes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	assert.Equal(t, "OK", OK.String())
	assert.Equal(t, "NotFound", NotFound.String())
	assert.Equal(t, "Unauthenticated", Unauthenticated.String())
	assert.Equal(t, "Code(42)", Code(42).String())
}

func TestValid(t *testing.T) {
	for c := OK; c <= Unauthenticated; c++ {
		assert.True(t, c.Valid(), "code %d", c)
	}
	assert.False(t, Code(17).Valid())
	assert.False(t, Code(^uint32(0)).Valid())
}
