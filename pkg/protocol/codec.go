package protocol

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec implements google.golang.org/grpc/encoding.Codec over
// encoding/json. It stands in for the protoc-generated protobuf wire codec
// that would normally back a grpc.ServiceDesc — see pkg/protocol/service.go
// for why: the .proto/protoc pipeline itself is out of this codebase's
// scope, so the messages below are hand-authored Go structs marshalled as
// JSON instead of real protobuf wire bytes.
type jsonCodec struct{}

// CodecName is the name grpc-go dials/serves under for this codec.
const CodecName = "dts-json"

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
