package rpc

import (
	"fmt"

	"github.com/gogo/protobuf/proto"
	"google.golang.org/grpc/encoding"
)

// codec encodes the sync messages with gogo protobuf. Both ends force it,
// so it does not replace the default "proto" codec of the process.
type codec struct{}

var _ encoding.Codec = codec{}

func (codec) Marshal(v interface{}) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("cannot marshal %T: not a protobuf message", v)
	}
	return proto.Marshal(msg)
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	msg, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("cannot unmarshal into %T: not a protobuf message", v)
	}
	return proto.Unmarshal(data, msg)
}

func (codec) Name() string { return "gogoproto" }
