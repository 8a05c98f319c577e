package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/claws/gestalt/glog"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AMQPAdapter is the Adapter implementation backed by
// github.com/rabbitmq/amqp091-go. Connect reconnects with a fixed retry
// delay across transient drops, matching the "robust connection"
// behavior pub/sub and RPC roles require from start.
type AMQPAdapter struct {
	ReconnectDelay time.Duration

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	url    string
	closed bool

	onReturn func(Message)
	onClose  func(error)
}

func (a *AMQPAdapter) delay() time.Duration {
	if a.ReconnectDelay > 0 {
		return a.ReconnectDelay
	}
	return 2 * time.Second
}

// Connect dials url and opens a channel, retrying with a.delay() between
// attempts until ctx is cancelled.
func (a *AMQPAdapter) Connect(ctx context.Context, url string) error {
	a.mu.Lock()
	a.url = url
	a.mu.Unlock()
	return a.connectLoop(ctx)
}

func (a *AMQPAdapter) connectLoop(ctx context.Context) error {
	for {
		conn, err := amqp.Dial(a.url)
		if err == nil {
			ch, cherr := conn.Channel()
			if cherr == nil {
				a.mu.Lock()
				a.conn = conn
				a.ch = ch
				a.mu.Unlock()
				go a.watch(conn, ch)
				return nil
			}
			conn.Close()
			err = cherr
		}
		glog.L().Info("broker connect failed, retrying", zap.Error(err))
		select {
		case <-time.After(a.delay()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// watch observes the channel's close notification, invokes onClose with
// the close reason and, unless the adapter has been explicitly closed,
// reconnects.
func (a *AMQPAdapter) watch(conn *amqp.Connection, ch *amqp.Channel) {
	closeErrs := ch.NotifyClose(make(chan *amqp.Error, 1))
	returns := ch.NotifyReturn(make(chan amqp.Return, 8))
	go func() {
		for r := range returns {
			a.mu.Lock()
			cb := a.onReturn
			a.mu.Unlock()
			if cb != nil {
				cb(Message{Body: r.Body, ContentType: r.ContentType, Headers: amqpToMap(r.Headers), CorrelationID: r.CorrelationId, ReplyTo: r.ReplyTo})
			}
		}
	}()
	err := <-closeErrs
	a.mu.Lock()
	closed := a.closed
	cb := a.onClose
	a.mu.Unlock()
	if cb != nil {
		if err != nil {
			cb(fmt.Errorf("broker channel closed: %s", err.Reason))
		} else {
			cb(nil)
		}
	}
	if !closed {
		glog.L().Info("broker channel closed unexpectedly, reconnecting")
		a.connectLoop(context.Background())
	}
}

func (a *AMQPAdapter) channel() (*amqp.Channel, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ch == nil {
		return nil, fmt.Errorf("broker adapter not connected")
	}
	return a.ch, nil
}

// Close shuts the channel and connection down. Idempotent.
func (a *AMQPAdapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	ch, conn := a.ch, a.conn
	a.mu.Unlock()
	if ch != nil {
		ch.Close()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (a *AMQPAdapter) SetPrefetch(count int) error {
	ch, err := a.channel()
	if err != nil {
		return err
	}
	return ch.Qos(count, 0, false)
}

func (a *AMQPAdapter) DeclareExchange(name string, kind ExchangeKind, durable bool) error {
	ch, err := a.channel()
	if err != nil {
		return err
	}
	return ch.ExchangeDeclare(name, string(kind), durable, false, false, false, nil)
}

func (a *AMQPAdapter) DeclareQueue(opt QueueOptions) (string, error) {
	ch, err := a.channel()
	if err != nil {
		return "", err
	}
	q, err := ch.QueueDeclare(opt.Name, opt.Durable, opt.AutoDelete, opt.Exclusive, false, amqp.Table(opt.Arguments))
	if err != nil {
		return "", err
	}
	return q.Name, nil
}

func (a *AMQPAdapter) BindQueue(queue, exchange, routingKey string, args map[string]any) error {
	ch, err := a.channel()
	if err != nil {
		return err
	}
	return ch.QueueBind(queue, routingKey, exchange, false, amqp.Table(args))
}

func (a *AMQPAdapter) UnbindQueue(queue, exchange, routingKey string) error {
	ch, err := a.channel()
	if err != nil {
		return err
	}
	return ch.QueueUnbind(queue, routingKey, exchange, nil)
}

func (a *AMQPAdapter) Publish(ctx context.Context, opt PublishOptions) error {
	ch, err := a.channel()
	if err != nil {
		return err
	}
	m := opt.Message
	pub := amqp.Publishing{
		Body:            m.Body,
		ContentType:     m.ContentType,
		ContentEncoding: m.ContentEncoding,
		Timestamp:       m.Timestamp,
		Headers:         amqp.Table(m.Headers),
		CorrelationId:   m.CorrelationID,
		ReplyTo:         m.ReplyTo,
		Expiration:      m.Expiration,
		DeliveryMode:    m.DeliveryMode,
	}
	return ch.PublishWithContext(ctx, opt.Exchange, opt.RoutingKey, opt.Mandatory, false, pub)
}

func (a *AMQPAdapter) OnReturn(fn func(Message)) {
	a.mu.Lock()
	a.onReturn = fn
	a.mu.Unlock()
}

func (a *AMQPAdapter) OnClose(fn func(error)) {
	a.mu.Lock()
	a.onClose = fn
	a.mu.Unlock()
}

func (a *AMQPAdapter) Consume(ctx context.Context, queue string, fn func(Delivery)) error {
	ch, err := a.channel()
	if err != nil {
		return err
	}
	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	go func() {
		for {
			select {
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				fn(amqpToDelivery(d))
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func amqpToMap(t amqp.Table) map[string]any {
	if t == nil {
		return nil
	}
	return map[string]any(t)
}

func amqpToDelivery(d amqp.Delivery) Delivery {
	return Delivery{
		Message: Message{
			Body:            d.Body,
			ContentType:     d.ContentType,
			ContentEncoding: d.ContentEncoding,
			Timestamp:       d.Timestamp,
			Headers:         amqpToMap(d.Headers),
			CorrelationID:   d.CorrelationId,
			ReplyTo:         d.ReplyTo,
			Expiration:      d.Expiration,
			DeliveryMode:    d.DeliveryMode,
		},
		Ack:    func() error { return d.Ack(false) },
		Nack:   func(requeue bool) error { return d.Nack(false, requeue) },
		Reject: func(requeue bool) error { return d.Reject(requeue) },
	}
}
