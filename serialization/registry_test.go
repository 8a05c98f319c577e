package serialization

import (
	"errors"
	"reflect"
	"testing"

	"github.com/claws/gestalt/gerrors"
)

func TestNameMimeBijection(t *testing.T) {
	r := NewRegistry()
	byName, err := r.GetEntry(NameJSON)
	if err != nil {
		t.Fatalf("GetEntry(name) failed: %v", err)
	}
	byMIME, err := r.GetEntry(MIMEJSON)
	if err != nil {
		t.Fatalf("GetEntry(mime) failed: %v", err)
	}
	if byName != byMIME {
		t.Errorf("expected GetEntry(name) and GetEntry(mime) to return the same entry")
	}
}

func TestUnknownCodec(t *testing.T) {
	r := NewRegistry()
	if _, err := r.GetEntry("nonexistent"); !errors.Is(err, gerrors.ErrUnknownCodec) {
		t.Errorf("expected ErrUnknownCodec, got %v", err)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	r := NewRegistry()
	value := map[string]any{"a": float64(1), "b": float64(2)}
	mime, enc, data, err := r.Dumps(value, NameJSON, nil)
	if err != nil {
		t.Fatalf("Dumps failed: %v", err)
	}
	if mime != MIMEJSON || enc != EncodingUTF8 {
		t.Errorf("unexpected mime/encoding: %s / %s", mime, enc)
	}
	got, err := r.Loads(data, mime, nil)
	if err != nil {
		t.Fatalf("Loads failed: %v", err)
	}
	if !reflect.DeepEqual(got, value) {
		t.Errorf("round trip mismatch: got %v want %v", got, value)
	}
}

func TestDefaultResolutionByGoType(t *testing.T) {
	r := NewRegistry()
	mime, _, data, err := r.Dumps([]byte("raw bytes"), "", nil)
	if err != nil {
		t.Fatalf("Dumps failed: %v", err)
	}
	if mime != MIMERaw {
		t.Errorf("expected raw serializer for []byte, got mime %q", mime)
	}
	if string(data) != "raw bytes" {
		t.Errorf("raw payload mismatch: got %q", data)
	}

	mime, _, data, err = r.Dumps("plain string", "", nil)
	if err != nil {
		t.Fatalf("Dumps failed: %v", err)
	}
	if mime != MIMEText {
		t.Errorf("expected text serializer for string, got mime %q", mime)
	}
	if string(data) != "plain string" {
		t.Errorf("text payload mismatch: got %q", data)
	}
}

func TestEmptyPayloadReturnedUnchanged(t *testing.T) {
	r := NewRegistry()
	v, err := r.Loads(nil, MIMEJSON, nil)
	if err != nil {
		t.Fatalf("Loads on empty payload failed: %v", err)
	}
	if len(v.([]byte)) != 0 {
		t.Errorf("expected empty result, got %v", v)
	}
}

func TestMsgpackAndYAMLRoundTrip(t *testing.T) {
	r := NewRegistry()
	value := map[string]any{"hello": "world"}
	for _, name := range []string{NameMsgpack, NameYAML} {
		mime, _, data, err := r.Dumps(value, name, nil)
		if err != nil {
			t.Fatalf("Dumps(%s) failed: %v", name, err)
		}
		got, err := r.Loads(data, mime, nil)
		if err != nil {
			t.Fatalf("Loads(%s) failed: %v", name, err)
		}
		gm, ok := got.(map[string]any)
		if !ok {
			t.Fatalf("Loads(%s) returned %T, want map[string]any", name, got)
		}
		if gm["hello"] != "world" {
			t.Errorf("Loads(%s) mismatch: got %v", name, gm)
		}
	}
}
