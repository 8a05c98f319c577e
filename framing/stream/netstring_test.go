package stream

import (
	"bytes"
	"errors"
	"testing"

	"github.com/claws/gestalt/gerrors"
)

func TestNetstringByteAtATimeYieldsExactlyOneMessage(t *testing.T) {
	var p NetstringParser
	payload := []byte("Hello World")
	frame, err := p.Frame(payload, 0)
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if len(frame) != 4+len(payload) {
		t.Fatalf("expected 15-byte frame for an 11-byte payload, got %d", len(frame))
	}
	var got []Message
	for _, b := range frame {
		msgs, err := p.Feed([]byte{b})
		if err != nil {
			t.Fatalf("Feed failed: %v", err)
		}
		got = append(got, msgs...)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 message, got %d", len(got))
	}
	if !bytes.Equal(got[0].Payload, payload) {
		t.Errorf("payload mismatch: got %q want %q", got[0].Payload, payload)
	}
}

func TestNetstringZeroLengthClosesConnection(t *testing.T) {
	var p NetstringParser
	header := []byte{0, 0, 0, 0}
	if _, err := p.Feed(header); !errors.Is(err, gerrors.ErrInvalidFrame) {
		t.Errorf("expected ErrInvalidFrame for zero length, got %v", err)
	}
}

func TestNetstringOversizedLengthClosesConnection(t *testing.T) {
	var p NetstringParser
	header := []byte{0xff, 0xff, 0xff, 0xff}
	if _, err := p.Feed(header); !errors.Is(err, gerrors.ErrInvalidFrame) {
		t.Errorf("expected ErrInvalidFrame for oversized length, got %v", err)
	}
}

func TestNetstringMultipleMessagesInOneFeed(t *testing.T) {
	var p NetstringParser
	f1, _ := p.Frame([]byte("one"), 0)
	f2, _ := p.Frame([]byte("two"), 0)
	msgs, err := p.Feed(append(f1, f2...))
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(msgs) != 2 || string(msgs[0].Payload) != "one" || string(msgs[1].Payload) != "two" {
		t.Fatalf("expected [one two], got %+v", msgs)
	}
}
