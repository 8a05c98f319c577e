package stream

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/claws/gestalt/peer"
)

func TestClientConnectsAndExchangesMessages(t *testing.T) {
	serverReceived := make(chan []byte, 1)
	srv := NewStreamServer(ServerOptions{
		Address: "127.0.0.1:0",
		Framing: FramingNetstring,
		Callbacks: Callbacks{
			OnMessage: func(id peer.ID, payload []byte, typeID uint32, haveTypeID bool) {
				serverReceived <- payload
			},
		},
	})
	if err := srv.Start(); err != nil {
		t.Fatalf("server Start failed: %v", err)
	}
	defer srv.Stop()
	addr := boundAddr(t, srv)

	var up int32
	cli := NewStreamClient(ClientOptions{
		Address: addr,
		Framing: FramingNetstring,
		Callbacks: Callbacks{
			OnPeerUp: func(id peer.ID) { atomic.StoreInt32(&up, 1) },
		},
	})
	cli.Start()
	defer cli.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&up) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never reported peer up")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(cli.Connections()) == 0 {
		t.Fatal("expected a connected client to report a non-empty Connections()")
	}

	if err := cli.Send([]byte("ping"), 0); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	select {
	case payload := <-serverReceived:
		if string(payload) != "ping" {
			t.Errorf("payload mismatch: got %q", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server to receive message")
	}
}

func TestClientStartStopIdempotent(t *testing.T) {
	cli := NewStreamClient(ClientOptions{Address: "127.0.0.1:1", Framing: FramingNetstring, Reconnect: false})
	cli.Start()
	cli.Start()
	cli.Stop()
	cli.Stop()
	if cli.State() != StateIdle {
		t.Errorf("expected StateIdle after Stop, got %v", cli.State())
	}
}

func TestClientStopCancelsBackoffWait(t *testing.T) {
	cli := NewStreamClient(ClientOptions{
		Address:        "127.0.0.1:1",
		Framing:        FramingNetstring,
		Reconnect:      true,
		BackoffMaximum: 30 * time.Second,
	})
	cli.Start()
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		cli.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return promptly; backoff wait was not cancelled")
	}
}

func TestBackoffScheduleMatchesSequence(t *testing.T) {
	max := 10 * time.Second
	want := []time.Duration{
		time.Second,
		2500 * time.Millisecond,
		4750 * time.Millisecond,
		8125 * time.Millisecond,
		10 * time.Second,
		10 * time.Second,
	}
	current := time.Duration(0)
	for i, w := range want {
		current = nextBackoff(current, max)
		if current != w {
			t.Errorf("step %d: expected %v, got %v", i, w, current)
		}
	}
}
