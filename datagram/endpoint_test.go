package datagram

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/claws/gestalt/gerrors"
)

func TestStartRejectsAmbiguousAddressConfiguration(t *testing.T) {
	e := NewDatagramEndpoint(Options{})
	if err := e.Start(); !errors.Is(err, gerrors.ErrInvalidConfiguration) {
		t.Fatalf("got %v, want ErrInvalidConfiguration for neither address set", err)
	}

	e2 := NewDatagramEndpoint(Options{LocalAddr: "127.0.0.1:0", RemoteAddr: "127.0.0.1:0"})
	if err := e2.Start(); !errors.Is(err, gerrors.ErrInvalidConfiguration) {
		t.Fatalf("got %v, want ErrInvalidConfiguration for both addresses set", err)
	}
}

func TestLocalEndpointRoundTrip(t *testing.T) {
	received := make(chan []byte, 1)
	server := NewDatagramEndpoint(Options{
		LocalAddr: "127.0.0.1:0",
		Framing:   FramingNetstring,
		Callbacks: Callbacks{
			OnMessage: func(payload []byte, typeID uint32, haveTypeID bool, addr net.Addr) {
				received <- payload
			},
		},
	})
	if err := server.Start(); err != nil {
		t.Fatalf("server start: %v", err)
	}
	defer server.Stop()

	bindings := server.Bindings()
	if len(bindings) == 0 {
		t.Fatal("expected a started endpoint to report a non-empty Bindings()")
	}

	client := NewDatagramEndpoint(Options{RemoteAddr: bindings[0].String(), Framing: FramingNetstring})
	if err := client.Start(); err != nil {
		t.Fatalf("client start: %v", err)
	}
	defer client.Stop()
	if len(client.Connections()) == 0 {
		t.Fatal("expected a connected endpoint to report a non-empty Connections()")
	}

	if err := client.Send([]byte("hello"), 0, nil); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case payload := <-received:
		if string(payload) != "hello" {
			t.Fatalf("got %q, want hello", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for datagram")
	}
}

func TestMTIFramingCarriesTypeID(t *testing.T) {
	type received struct {
		payload    []byte
		typeID     uint32
		haveTypeID bool
	}
	got := make(chan received, 1)
	server := NewDatagramEndpoint(Options{
		LocalAddr: "127.0.0.1:0",
		Framing:   FramingMTI,
		Callbacks: Callbacks{
			OnMessage: func(payload []byte, typeID uint32, haveTypeID bool, addr net.Addr) {
				got <- received{payload, typeID, haveTypeID}
			},
		},
	})
	if err := server.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer server.Stop()

	bindings := server.Bindings()
	if len(bindings) == 0 {
		t.Fatal("expected a started endpoint to report a non-empty Bindings()")
	}

	client := NewDatagramEndpoint(Options{RemoteAddr: bindings[0].String(), Framing: FramingMTI})
	if err := client.Start(); err != nil {
		t.Fatalf("client start: %v", err)
	}
	defer client.Stop()

	if err := client.Send(nil, 7, nil); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case r := <-got:
		if !r.haveTypeID || r.typeID != 7 || len(r.payload) != 0 {
			t.Fatalf("got %+v, want empty payload with type_id=7", r)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for datagram")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	e := NewDatagramEndpoint(Options{LocalAddr: "127.0.0.1:0"})
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(e.Bindings()) == 0 {
		t.Fatal("expected non-empty Bindings() while running")
	}
	if err := e.Start(); err != nil {
		t.Fatalf("second start: %v", err)
	}
	e.Stop()
	if len(e.Bindings()) != 0 {
		t.Fatal("expected empty Bindings() after Stop")
	}
	e.Stop()
}
