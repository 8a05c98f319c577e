package pubsub

import (
	"context"
	"sync"

	"github.com/claws/gestalt/broker"
	"github.com/claws/gestalt/glog"
	"github.com/claws/gestalt/payload"
	"github.com/claws/gestalt/resumable"
	"go.uber.org/zap"
)

// ConsumerOptions configures a Consumer.
type ConsumerOptions struct {
	URL          string
	ExchangeName string
	RoutingKey   string
	Prefetch     int
	Adapter      broker.Adapter
	Pipeline     *payload.Pipeline
	// OnMessage is invoked with the decoded value for every delivery; it
	// may settle synchronously (return a Done result) or hand back a
	// still-pending one.
	OnMessage func(ctx context.Context, value any, headers map[string]any) resumable.Result
}

// Consumer declares an exclusive, server-named queue, binds it to the
// producer's exchange by routing key, and acks/nacks each delivery once
// its handler settles.
type Consumer struct {
	opt ConsumerOptions

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

// NewConsumer constructs a Consumer. ExchangeName defaults to
// "gestalt.topic"; Prefetch defaults to 1.
func NewConsumer(opt ConsumerOptions) *Consumer {
	if opt.ExchangeName == "" {
		opt.ExchangeName = "gestalt.topic"
	}
	if opt.Prefetch == 0 {
		opt.Prefetch = 1
	}
	if opt.Adapter == nil {
		opt.Adapter = &broker.AMQPAdapter{}
	}
	if opt.Pipeline == nil {
		opt.Pipeline = payload.Default
	}
	return &Consumer{opt: opt}
}

// Start connects, declares the exchange, declares an exclusive queue,
// binds it by routing key, and begins consuming.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	url := c.opt.URL
	if url == "" {
		url = broker.BuildURL(broker.URLOptions{})
	}
	if err := c.opt.Adapter.Connect(ctx, url); err != nil {
		return err
	}
	if err := c.opt.Adapter.DeclareExchange(c.opt.ExchangeName, broker.ExchangeTopic, true); err != nil {
		return err
	}
	if err := c.opt.Adapter.SetPrefetch(c.opt.Prefetch); err != nil {
		return err
	}
	queue, err := c.opt.Adapter.DeclareQueue(broker.QueueOptions{Exclusive: true, AutoDelete: true})
	if err != nil {
		return err
	}
	if err := c.opt.Adapter.BindQueue(queue, c.opt.ExchangeName, c.opt.RoutingKey, nil); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	if err := c.opt.Adapter.Consume(runCtx, queue, c.handleDelivery); err != nil {
		cancel()
		return err
	}
	c.started = true
	return nil
}

// Stop closes the channel and connection. Idempotent.
func (c *Consumer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	c.started = false
	if c.cancel != nil {
		c.cancel()
	}
	return c.opt.Adapter.Close()
}

func (c *Consumer) handleDelivery(d broker.Delivery) {
	value, err := c.opt.Pipeline.Decode(d.Body, d.ContentType, payload.Options{}, d.Headers)
	if err != nil {
		glog.L().Info("pubsub consumer decode failed, dropping", zap.Error(err))
		d.Ack()
		return
	}
	var result resumable.Result
	ctx := context.Background()
	glog.Safe("pubsub.OnMessage", func() {
		result = c.opt.OnMessage(ctx, value, d.Headers)
	})
	if err := resumable.Await(ctx, result); err != nil {
		glog.L().Info("pubsub consumer handler failed, returning to queue", zap.Error(err))
		d.Nack(true)
		return
	}
	d.Ack()
}
