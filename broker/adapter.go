package broker

import "context"

// ExchangeKind names the AMQP exchange type used by a binding.
type ExchangeKind string

const (
	ExchangeTopic   ExchangeKind = "topic"
	ExchangeDirect  ExchangeKind = "direct"
	ExchangeHeaders ExchangeKind = "headers"
)

// QueueOptions configures a declared queue.
type QueueOptions struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	Arguments  map[string]any
}

// PublishOptions configures one Publish call.
type PublishOptions struct {
	Exchange   string
	RoutingKey string
	Mandatory  bool
	Message    Message
}

// Delivery is one message handed to a consumer, with the operations
// available to settle it.
type Delivery struct {
	Message
	Ack    func() error
	Nack   func(requeue bool) error
	Reject func(requeue bool) error
}

// Adapter abstracts the broker client a pub/sub or RPC role runs
// against. Any client satisfying this interface substitutes cleanly;
// AMQPAdapter is the one this module ships.
type Adapter interface {
	// Connect opens a robust connection and channel, reconnecting
	// transparently across drops until Close is called.
	Connect(ctx context.Context, url string) error
	Close() error

	SetPrefetch(count int) error
	DeclareExchange(name string, kind ExchangeKind, durable bool) error
	DeclareQueue(opt QueueOptions) (name string, err error)
	BindQueue(queue, exchange, routingKey string, args map[string]any) error
	UnbindQueue(queue, exchange, routingKey string) error

	Publish(ctx context.Context, opt PublishOptions) error

	// OnReturn registers the callback invoked when a mandatory publish
	// could not be routed.
	OnReturn(fn func(Message))
	// OnClose registers the callback invoked when the channel closes,
	// carrying the closing error (nil on a clean shutdown).
	OnClose(fn func(error))

	// Consume starts delivering messages from queue to fn until Close or
	// the context is cancelled.
	Consume(ctx context.Context, queue string, fn func(Delivery)) error
}
