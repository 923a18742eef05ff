package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is the content-subtype registered with grpc's encoding
// package. Dialing with grpc.CallContentSubtype(codecName) (done in Acquire,
// handle.go) makes every call on the resulting ClientConn use jsonCodec
// instead of the default protobuf codec, so the request/response structs
// in wire.go travel as-is without needing generated proto.Message types.
const codecName = "moac-json"

// jsonCodec implements encoding.Codec over encoding/json. It is registered globally in init, matching how the
// agent's generated grpc-gateway stubs would register a protobuf codec.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
