package daemonrpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is the gRPC content-subtype ("application/grpc+json") this codec
// registers under. The client selects it with grpc.CallContentSubtype on
// every call; the server finds it in the codec registry by each request's
// content-subtype.
const codecName = "json"

// jsonCodec replaces grpc-go's default proto codec with plain JSON, since
// this package's messages are hand-written structs, not protoc-generated
// proto.Message implementations.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
