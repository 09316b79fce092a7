package codec

import (
	"encoding/json"
	"errors"
	"reflect"

	"github.com/gwirelabs/gwire/mem"
)

// JSONName is the registration name of the JSON codec.
const JSONName = "json"

func init() {
	RegisterCodec(JSON{})
}

// JSON serializes messages with encoding/json. It is useful for
// handwritten services and tests that have no generated protobuf types.
type JSON struct{}

func (JSON) Name() string { return JSONName }

func (JSON) Marshal(v any) (mem.BufferSlice, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mem.BufferSlice{mem.SliceBuffer(data)}, nil
}

func (JSON) Unmarshal(data mem.BufferSlice, v any) error {
	raw := data.Materialize()

	// Decode into a fresh value of the target type first so a malformed
	// payload cannot leave v half-written.
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return &DecodeError{CodecName: JSONName, Err: errNotPointer}
	}
	fresh := reflect.New(rv.Elem().Type())
	if err := json.Unmarshal(raw, fresh.Interface()); err != nil {
		return &DecodeError{CodecName: JSONName, Err: err}
	}
	rv.Elem().Set(fresh.Elem())
	return nil
}

var errNotPointer = errors.New("unmarshal target must be a non-nil pointer")
