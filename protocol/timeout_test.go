package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeTimeout(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0n"},
		{-time.Second, "0n"},
		{time.Nanosecond, "1n"},
		{9999999 * time.Nanosecond, "9999999n"},
		{10000000 * time.Nanosecond, "10000u"},
		{time.Millisecond, "1000000n"},
		{time.Second, "1000000u"},
		{90 * time.Second, "90000m"},
		{100 * time.Hour, "360000S"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EncodeTimeout(tt.in), "duration %v", tt.in)
	}
}

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"0n", 0},
		{"1n", time.Nanosecond},
		{"500u", 500 * time.Microsecond},
		{"250m", 250 * time.Millisecond},
		{"30S", 30 * time.Second},
		{"5M", 5 * time.Minute},
		{"2H", 2 * time.Hour},
		{"99999999n", 99999999 * time.Nanosecond},
	}
	for _, tt := range tests {
		got, err := ParseTimeout(tt.in)
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestParseTimeoutInvalid(t *testing.T) {
	tests := []string{"", "5", "s5", "5x", "-5S", "123456789n", "1.5S", "n"}
	for _, in := range tests {
		_, err := ParseTimeout(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestParseTimeoutUnboundedHours(t *testing.T) {
	_, err := ParseTimeout("99999999H")
	assert.ErrorIs(t, err, ErrNoTimeout)
}

func TestTimeoutRoundTrip(t *testing.T) {
	for _, d := range []time.Duration{time.Millisecond, 3 * time.Second, 27 * time.Minute, 4 * time.Hour} {
		got, err := ParseTimeout(EncodeTimeout(d))
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
}
