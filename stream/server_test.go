package stream

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/claws/gestalt/peer"
)

// boundAddr returns the address a running server actually bound to,
// per the Bindings() lifecycle invariant: a started endpoint exposes a
// non-empty set of bound addresses.
func boundAddr(t *testing.T, srv *StreamServer) string {
	t.Helper()
	bindings := srv.Bindings()
	if len(bindings) == 0 {
		t.Fatal("expected a started server to report a non-empty Bindings()")
	}
	return bindings[0].String()
}

func TestServerNetstringRoundTrip(t *testing.T) {
	received := make(chan []byte, 1)
	srv := NewStreamServer(ServerOptions{
		Address: "127.0.0.1:0",
		Framing: FramingNetstring,
		Callbacks: Callbacks{
			OnMessage: func(id peer.ID, payload []byte, typeID uint32, haveTypeID bool) {
				received <- payload
			},
		},
	})
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer srv.Stop()
	addr := boundAddr(t, srv)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	frame, err := newParser(FramingNetstring, nil).Frame([]byte("Hello World"), 0)
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if len(frame) != 15 {
		t.Fatalf("expected a 15-byte frame for an 11-byte payload, got %d", len(frame))
	}
	if _, err := conn.Write(frame); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case payload := <-received:
		if string(payload) != "Hello World" {
			t.Errorf("payload mismatch: got %q", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestServerBroadcastReachesAllPeers(t *testing.T) {
	srv := NewStreamServer(ServerOptions{Address: "127.0.0.1:0", Framing: FramingNetstring})
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer srv.Stop()
	addr := boundAddr(t, srv)

	const n = 3
	conns := make([]net.Conn, n)
	for i := range conns {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			t.Fatalf("Dial failed: %v", err)
		}
		conns[i] = conn
		defer conn.Close()
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if len(srv.Peers()) == n {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d peers, got %d", n, len(srv.Peers()))
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := srv.Send([]byte("all"), 0, nil); err != nil {
		t.Fatalf("broadcast Send failed: %v", err)
	}

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			buf := make([]byte, 64)
			c.SetReadDeadline(time.Now().Add(2 * time.Second))
			n, err := c.Read(buf)
			if err != nil {
				t.Errorf("read failed: %v", err)
				return
			}
			if n < 4 {
				t.Errorf("frame too short: %d", n)
			}
		}(conn)
	}
	wg.Wait()
}

func TestServerStartStopIdempotent(t *testing.T) {
	srv := NewStreamServer(ServerOptions{Address: "127.0.0.1:0", Framing: FramingNetstring})
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if len(srv.Bindings()) == 0 {
		t.Fatal("expected non-empty Bindings() while running")
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("second Start should be a no-op, got error: %v", err)
	}
	srv.Stop()
	if len(srv.Bindings()) != 0 {
		t.Fatal("expected empty Bindings() after Stop")
	}
	srv.Stop()
}
