package stream

import "testing"

func TestDelimiterPartialRetainedUntilDelimiterArrives(t *testing.T) {
	p := &DelimiterParser{}
	msgs, err := p.Feed([]byte("partial"))
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages yet, got %d", len(msgs))
	}
	msgs, err = p.Feed([]byte(" segment\n"))
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(msgs) != 1 || string(msgs[0].Payload) != "partial segment" {
		t.Fatalf("expected one message \"partial segment\", got %+v", msgs)
	}
}

func TestDelimiterEmptySegmentsDropped(t *testing.T) {
	p := &DelimiterParser{}
	msgs, err := p.Feed([]byte("a\n\nb\n"))
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(msgs) != 2 || string(msgs[0].Payload) != "a" || string(msgs[1].Payload) != "b" {
		t.Fatalf("expected [a b], got %+v", msgs)
	}
}

func TestDelimiterMultiByteSequence(t *testing.T) {
	p := &DelimiterParser{Delimiter: []byte("||")}
	msgs, err := p.Feed([]byte("one||two||"))
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(msgs) != 2 || string(msgs[0].Payload) != "one" || string(msgs[1].Payload) != "two" {
		t.Fatalf("expected [one two], got %+v", msgs)
	}
}
