// Package codec defines the pluggable message serialization contract and
// the protobuf and JSON implementations shipped with the engine.
package codec

import (
	"fmt"
	"strings"

	"github.com/gwirelabs/gwire/mem"
)

// Codec turns structured message values into bytes and back. The engine
// is agnostic to the format as long as this contract holds.
//
// Implementations must be stateless and safe to invoke concurrently from
// independent streams, and Unmarshal must not partially mutate v on
// failure.
type Codec interface {
	// Name identifies the codec in content negotiation, e.g. "proto".
	Name() string
	// Marshal serializes v. The returned BufferSlice should be freed by
	// the caller once the bytes are on the wire.
	Marshal(v any) (out mem.BufferSlice, err error)
	// Unmarshal deserializes data into v, failing if the bytes do not
	// represent a valid value of v's type.
	Unmarshal(data mem.BufferSlice, v any) error
}

var registeredCodecs = make(map[string]Codec)

// RegisterCodec makes a codec available by name. Not safe to call
// concurrently with GetCodec; call from init functions.
func RegisterCodec(c Codec) {
	if c == nil {
		panic("codec: RegisterCodec called with nil codec")
	}
	name := strings.ToLower(c.Name())
	if name == "" {
		panic("codec: RegisterCodec called with an empty name")
	}
	registeredCodecs[name] = c
}

// GetCodec returns the codec registered under name, or nil.
func GetCodec(name string) Codec {
	return registeredCodecs[strings.ToLower(name)]
}

// DecodeError reports bytes that do not form a valid message of the
// expected type. It is fatal to the stream it occurred on.
type DecodeError struct {
	CodecName string
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("codec %s: cannot decode message: %v", e.CodecName, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
