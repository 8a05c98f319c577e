package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/claws/gestalt/broker"
	"github.com/claws/gestalt/resumable"
)

func TestProducerConsumerRoundTrip(t *testing.T) {
	adapter := broker.NewFakeAdapter()
	ctx := context.Background()

	received := make(chan map[string]any, 1)
	consumer := NewConsumer(ConsumerOptions{
		Adapter:    adapter,
		RoutingKey: "orders.created",
		OnMessage: func(ctx context.Context, value any, headers map[string]any) resumable.Result {
			received <- value.(map[string]any)
			return resumable.Done(nil)
		},
	})
	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("consumer start: %v", err)
	}
	defer consumer.Stop()

	producer := NewProducer(ProducerOptions{Adapter: adapter})
	if err := producer.Start(ctx); err != nil {
		t.Fatalf("producer start: %v", err)
	}
	defer producer.Stop()

	err := producer.PublishMessage(ctx, map[string]any{"order_id": "abc"}, PublishOptions{
		RoutingKey: "orders.created",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case v := <-received:
		if v["order_id"] != "abc" {
			t.Fatalf("got %v, want order_id=abc", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestConsumerDropsUndecodableDelivery(t *testing.T) {
	adapter := broker.NewFakeAdapter()
	ctx := context.Background()

	calls := make(chan struct{}, 1)
	consumer := NewConsumer(ConsumerOptions{
		Adapter:    adapter,
		RoutingKey: "k",
		OnMessage: func(ctx context.Context, value any, headers map[string]any) resumable.Result {
			calls <- struct{}{}
			return resumable.Done(nil)
		},
	})
	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer consumer.Stop()

	err := adapter.Publish(ctx, broker.PublishOptions{
		Exchange:   "gestalt.topic",
		RoutingKey: "k",
		Message:    broker.Message{Body: []byte("{not json"), ContentType: "application/json"},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-calls:
		t.Fatal("handler should not run for undecodable delivery")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConsumerStartStopIdempotent(t *testing.T) {
	adapter := broker.NewFakeAdapter()
	ctx := context.Background()
	c := NewConsumer(ConsumerOptions{
		Adapter:    adapter,
		RoutingKey: "k",
		OnMessage:  func(ctx context.Context, value any, headers map[string]any) resumable.Result { return resumable.Done(nil) },
	})
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
