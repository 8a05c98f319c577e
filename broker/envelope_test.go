package broker

import "testing"

func TestMessageCarriesHeaders(t *testing.T) {
	m := Message{
		Body:            []byte(`{"a":1}`),
		ContentType:     "application/json",
		ContentEncoding: "utf-8",
		Headers:         map[string]any{HeaderTypeID: 3, HeaderCompression: "application/zlib"},
	}
	if m.Headers[HeaderTypeID] != 3 {
		t.Fatalf("expected type id 3, got %v", m.Headers[HeaderTypeID])
	}
	if m.Headers[HeaderCompression] != "application/zlib" {
		t.Fatalf("expected zlib compression label, got %v", m.Headers[HeaderCompression])
	}
}
