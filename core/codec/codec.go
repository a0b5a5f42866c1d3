package codec

import (
	"encoding/json"
	"errors"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

var (
	ErrUnsupportedCodec = errors.New("unsupported codec")
)

// Codec encodes response bodies and decodes request bodies
type Codec interface {
	// Encode encodes a value to bytes
	Encode(v any) ([]byte, error)

	// Decode decodes bytes to a value
	Decode(data []byte, v any) error

	// Name returns the codec name
	Name() string

	// ContentType returns the MIME type of encoded data
	ContentType() string
}

// Get returns a codec by name
func Get(name string) (Codec, error) {
	switch name {
	case "json":
		return &JSONCodec{}, nil
	case "protobuf":
		return &ProtobufCodec{}, nil
	default:
		return nil, ErrUnsupportedCodec
	}
}

// ForAccept picks a codec from an Accept header value, defaulting to JSON
func ForAccept(accept string) Codec {
	for _, part := range strings.Split(accept, ",") {
		mediaType, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		switch strings.TrimSpace(mediaType) {
		case "application/x-protobuf", "application/protobuf":
			return &ProtobufCodec{}
		case "application/json":
			return &JSONCodec{}
		}
	}
	return &JSONCodec{}
}

// JSONCodec implements JSON encoding/decoding.
// Protobuf messages use their canonical JSON mapping.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	if msg, ok := v.(proto.Message); ok {
		return protojson.Marshal(msg)
	}
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	if msg, ok := v.(proto.Message); ok {
		return protojson.Unmarshal(data, msg)
	}
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) Name() string {
	return "json"
}

func (c *JSONCodec) ContentType() string {
	return "application/json"
}
