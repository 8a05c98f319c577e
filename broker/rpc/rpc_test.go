package rpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/claws/gestalt/broker"
	"github.com/claws/gestalt/gerrors"
	"github.com/claws/gestalt/resumable"
)

func TestRequestSuccess(t *testing.T) {
	adapter := broker.NewFakeAdapter()
	ctx := context.Background()

	responder := NewResponder(ResponderOptions{
		Adapter:     adapter,
		ServiceName: "echo",
		Handle: func(ctx context.Context, value any, headers map[string]any) (any, resumable.Result) {
			m := value.(map[string]any)
			return map[string]any{"echoed": m["text"]}, resumable.Done(nil)
		},
	})
	if err := responder.Start(ctx); err != nil {
		t.Fatalf("responder start: %v", err)
	}
	defer responder.Stop()

	requester := NewRequester(RequesterOptions{Adapter: adapter})
	if err := requester.Start(ctx); err != nil {
		t.Fatalf("requester start: %v", err)
	}
	defer requester.Stop()

	reqCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	reply, err := requester.Request(reqCtx, map[string]any{"text": "hi"}, RequestOptions{ServiceName: "echo"})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	m := reply.(map[string]any)
	if m["echoed"] != "hi" {
		t.Fatalf("got %v, want echoed=hi", m)
	}
}

func TestRequestUndeliverableWithNoResponder(t *testing.T) {
	adapter := broker.NewFakeAdapter()
	ctx := context.Background()

	requester := NewRequester(RequesterOptions{Adapter: adapter})
	if err := requester.Start(ctx); err != nil {
		t.Fatalf("requester start: %v", err)
	}
	defer requester.Stop()

	reqCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_, err := requester.Request(reqCtx, map[string]any{"text": "hi"}, RequestOptions{ServiceName: "nobody-home"})
	if !errors.Is(err, gerrors.ErrUndeliverable) {
		t.Fatalf("got %v, want ErrUndeliverable", err)
	}
}

func TestRequestTimesOutWhenResponderRejects(t *testing.T) {
	adapter := broker.NewFakeAdapter()
	ctx := context.Background()

	responder := NewResponder(ResponderOptions{
		Adapter:     adapter,
		ServiceName: "flaky",
		Handle: func(ctx context.Context, value any, headers map[string]any) (any, resumable.Result) {
			return nil, resumable.Done(errors.New("boom"))
		},
	})
	if err := responder.Start(ctx); err != nil {
		t.Fatalf("responder start: %v", err)
	}
	defer responder.Stop()

	requester := NewRequester(RequesterOptions{Adapter: adapter})
	if err := requester.Start(ctx); err != nil {
		t.Fatalf("requester start: %v", err)
	}
	defer requester.Stop()

	reqCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_, err := requester.Request(reqCtx, map[string]any{"text": "hi"}, RequestOptions{ServiceName: "flaky", Expiration: "50"})
	if !errors.Is(err, gerrors.ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
}

func TestStopCancelsOutstandingRequests(t *testing.T) {
	adapter := broker.NewFakeAdapter()
	ctx := context.Background()

	requester := NewRequester(RequesterOptions{Adapter: adapter})
	if err := requester.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Bind the service queue so the publish routes somewhere and the
	// requester actually waits on its slot instead of failing fast.
	adapter.DeclareQueue(broker.QueueOptions{Name: "silent"})

	done := make(chan error, 1)
	go func() {
		_, err := requester.Request(context.Background(), "hi", RequestOptions{ServiceName: "silent"})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := requester.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, gerrors.ErrCancelled) {
			t.Fatalf("got %v, want ErrCancelled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for request to settle after Stop")
	}
}
