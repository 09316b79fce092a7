package protocol

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// grpc-timeout values are an ASCII integer of at most 8 digits followed
// by a single unit character.
const maxTimeoutChars = 8

var timeoutUnits = []struct {
	size time.Duration
	char byte
}{
	{time.Nanosecond, 'n'},
	{time.Microsecond, 'u'},
	{time.Millisecond, 'm'},
	{time.Second, 'S'},
	{time.Minute, 'M'},
	{time.Hour, 'H'},
}

var timeoutUnitLookup = make(map[byte]time.Duration)

func init() {
	for _, pair := range timeoutUnits {
		timeoutUnitLookup[pair.char] = pair.size
	}
}

// ErrNoTimeout is returned by ParseTimeout when no deadline is carried.
var ErrNoTimeout = errors.New("protocol: no timeout")

// EncodeTimeout renders a deadline's remaining duration as a
// grpc-timeout value, choosing the coarsest unit that fits 8 digits.
func EncodeTimeout(timeout time.Duration) string {
	if timeout <= 0 {
		return "0n"
	}
	for _, pair := range timeoutUnits {
		digits := strconv.FormatInt(int64(timeout/pair.size), 10)
		if len(digits) < maxTimeoutChars {
			return digits + string(pair.char)
		}
	}
	// The max time.Duration is smaller than the maximum expressible
	// timeout, so this is unreachable.
	return "0n"
}

// ParseTimeout parses a grpc-timeout value. The engine only carries the
// value between peers; enforcing it is the caller's responsibility.
func ParseTimeout(timeout string) (time.Duration, error) {
	if timeout == "" {
		return 0, ErrNoTimeout
	}
	unit, ok := timeoutUnitLookup[timeout[len(timeout)-1]]
	if !ok {
		return 0, fmt.Errorf("protocol: timeout %q has invalid unit", timeout)
	}
	num, err := strconv.ParseInt(timeout[:len(timeout)-1], 10, 64)
	if err != nil || num < 0 {
		return 0, fmt.Errorf("protocol: invalid timeout %q", timeout)
	}
	if len(timeout)-1 > maxTimeoutChars {
		return 0, fmt.Errorf("protocol: timeout %q is too long", timeout)
	}
	if unit == time.Hour && num > math.MaxInt64/int64(time.Hour) {
		// Effectively unbounded; treat as no deadline.
		return 0, ErrNoTimeout
	}
	return time.Duration(num) * unit, nil
}
