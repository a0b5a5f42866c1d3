package codec

import (
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestJSONCodec(t *testing.T) {
	codec := &JSONCodec{}

	type TestStruct struct {
		Name  string
		Value int
	}

	original := &TestStruct{Name: "test", Value: 42}

	data, err := codec.Encode(original)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	decoded := &TestStruct{}
	if err := codec.Decode(data, decoded); err != nil {
		t.Fatalf("Decode error: %v", err)
	}

	if *decoded != *original {
		t.Errorf("Mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestJSONCodecProtoMessage(t *testing.T) {
	codec := &JSONCodec{}

	original, err := structpb.NewStruct(map[string]any{"CONTENT_LENGTH": "13", "SCGI": "1"})
	if err != nil {
		t.Fatalf("NewStruct error: %v", err)
	}

	data, err := codec.Encode(original)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	decoded := &structpb.Struct{}
	if err := codec.Decode(data, decoded); err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if !proto.Equal(decoded, original) {
		t.Errorf("Mismatch: got %v, want %v", decoded, original)
	}
}

func TestProtobufCodec(t *testing.T) {
	codec := &ProtobufCodec{}

	original := wrapperspb.Int32(42)

	data, err := codec.Encode(original)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	decoded := &wrapperspb.Int32Value{}
	if err := codec.Decode(data, decoded); err != nil {
		t.Fatalf("Decode error: %v", err)
	}

	if decoded.Value != original.Value {
		t.Errorf("Mismatch: got %d, want %d", decoded.Value, original.Value)
	}

	if _, err := codec.Encode(struct{}{}); err == nil {
		t.Error("Expected error encoding a non-proto value")
	}
}

func TestForAccept(t *testing.T) {
	cases := map[string]string{
		"":                                  "json",
		"text/html, application/x-protobuf": "protobuf",
		"application/protobuf;q=0.9":        "protobuf",
		"application/json, application/x-protobuf": "json",
		"*/*": "json",
	}

	for accept, want := range cases {
		if got := ForAccept(accept).Name(); got != want {
			t.Errorf("ForAccept(%q) = %s, want %s", accept, got, want)
		}
	}
}

func TestGet(t *testing.T) {
	if c, err := Get("protobuf"); err != nil || c.Name() != "protobuf" {
		t.Errorf("Expected protobuf codec, got %v, %v", c, err)
	}
	if _, err := Get("msgpack"); err != ErrUnsupportedCodec {
		t.Errorf("Expected ErrUnsupportedCodec, got %v", err)
	}
}
