package payload

import (
	"reflect"
	"testing"

	"github.com/claws/gestalt/serialization"
)

func TestEncodeDecodeRoundTripWithCompression(t *testing.T) {
	p := Default
	headers := map[string]any{}
	value := map[string]any{"latitude": 130.0, "longitude": -30.0}

	contentType, _, body, err := p.Encode(value, Options{Serialization: serialization.NameJSON, Compression: "gzip"}, headers)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, ok := headers[HeaderCompression]; !ok {
		t.Fatalf("expected compression header to be set")
	}

	got, err := p.Decode(body, contentType, Options{}, headers)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !reflect.DeepEqual(got, value) {
		t.Errorf("round trip mismatch: got %v want %v", got, value)
	}
}

func TestEncodeDecodeNoCompression(t *testing.T) {
	p := Default
	headers := map[string]any{}
	contentType, _, body, err := p.Encode("hello", Options{Serialization: serialization.NameText}, headers)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, ok := headers[HeaderCompression]; ok {
		t.Errorf("did not expect compression header to be set")
	}
	got, err := p.Decode(body, contentType, Options{}, headers)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got != "hello" {
		t.Errorf("expected %q, got %q", "hello", got)
	}
}
