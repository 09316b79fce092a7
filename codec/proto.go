package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"

	"github.com/gwirelabs/gwire/mem"
)

// ProtoName is the registration name of the protobuf codec.
const ProtoName = "proto"

func init() {
	RegisterCodec(Proto{})
}

// Default is the codec used when none is configured.
var Default Codec = Proto{}

// Proto serializes protobuf messages. It is the default codec.
type Proto struct{}

func (Proto) Name() string { return ProtoName }

func (Proto) Marshal(v any) (mem.BufferSlice, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("codec proto: cannot marshal %T, want proto.Message", v)
	}

	size := proto.Size(m)
	if mem.IsBelowBufferPoolingThreshold(size) {
		buf, err := proto.Marshal(m)
		if err != nil {
			return nil, err
		}
		return mem.BufferSlice{mem.SliceBuffer(buf)}, nil
	}

	pool := mem.DefaultBufferPool()
	buf := pool.Get(size)
	if _, err := (proto.MarshalOptions{}).MarshalAppend((*buf)[:0], m); err != nil {
		pool.Put(buf)
		return nil, err
	}
	return mem.BufferSlice{mem.NewBuffer(buf, pool)}, nil
}

func (Proto) Unmarshal(data mem.BufferSlice, v any) error {
	m, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("codec proto: cannot unmarshal into %T, want proto.Message", v)
	}

	buf := data.MaterializeToBuffer(mem.DefaultBufferPool())
	defer buf.Free()
	if err := proto.Unmarshal(buf.ReadOnlyData(), m); err != nil {
		return &DecodeError{CodecName: ProtoName, Err: err}
	}
	return nil
}
