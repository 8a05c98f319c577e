package broker

import (
	"context"
	"fmt"
	"sync"
)

// FakeAdapter is an in-memory Adapter for tests: it has no network
// dependency, routes topic-exchange publishes by exact routing-key
// match, routes headers-exchange publishes by "any argument key present
// in the message's headers with a matching value", and moves rejected
// (no-requeue) deliveries from a queue with an x-dead-letter-exchange
// argument onto that exchange with an x-death header attached.
type FakeAdapter struct {
	mu        sync.Mutex
	exchanges map[string]ExchangeKind
	queues    map[string]*fakeQueue
	onReturn  func(Message)
	onClose   func(error)
	seq       int
	closed    bool
}

type fakeQueue struct {
	bindings []fakeBinding
	consumer func(Delivery)
	dlx      string
}

type fakeBinding struct {
	exchange   string
	routingKey string
	args       map[string]any
}

// NewFakeAdapter returns a ready-to-use FakeAdapter.
func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{
		exchanges: make(map[string]ExchangeKind),
		queues:    make(map[string]*fakeQueue),
	}
}

func (f *FakeAdapter) Connect(ctx context.Context, url string) error { return nil }

func (f *FakeAdapter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *FakeAdapter) SetPrefetch(count int) error { return nil }

func (f *FakeAdapter) DeclareExchange(name string, kind ExchangeKind, durable bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges[name] = kind
	return nil
}

func (f *FakeAdapter) DeclareQueue(opt QueueOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := opt.Name
	if name == "" {
		f.seq++
		name = fmt.Sprintf("fake.queue.%d", f.seq)
	}
	q, ok := f.queues[name]
	if !ok {
		q = &fakeQueue{}
		f.queues[name] = q
	}
	if dlx, ok := opt.Arguments["x-dead-letter-exchange"].(string); ok {
		q.dlx = dlx
	}
	return name, nil
}

func (f *FakeAdapter) BindQueue(queue, exchange, routingKey string, args map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.queues[queue]
	if !ok {
		q = &fakeQueue{}
		f.queues[queue] = q
	}
	q.bindings = append(q.bindings, fakeBinding{exchange: exchange, routingKey: routingKey, args: args})
	return nil
}

func (f *FakeAdapter) UnbindQueue(queue, exchange, routingKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.queues[queue]
	if !ok {
		return nil
	}
	kept := q.bindings[:0]
	for _, b := range q.bindings {
		if b.exchange == exchange && b.routingKey == routingKey {
			continue
		}
		kept = append(kept, b)
	}
	q.bindings = kept
	return nil
}

func matchesBinding(kind ExchangeKind, b fakeBinding, opt PublishOptions) bool {
	if b.exchange != opt.Exchange {
		return false
	}
	if kind == ExchangeHeaders {
		for k, v := range b.args {
			if k == "x-match" {
				continue
			}
			if opt.Message.Headers[k] == v {
				return true
			}
		}
		return false
	}
	return b.routingKey == opt.RoutingKey
}

func (f *FakeAdapter) Publish(ctx context.Context, opt PublishOptions) error {
	f.mu.Lock()
	kind := f.exchanges[opt.Exchange]
	var targets []*fakeQueue
	if opt.Exchange == "" {
		if q, ok := f.queues[opt.RoutingKey]; ok {
			targets = append(targets, q)
		}
	} else {
		for _, q := range f.queues {
			for _, b := range q.bindings {
				if matchesBinding(kind, b, opt) {
					targets = append(targets, q)
					break
				}
			}
		}
	}
	onReturn := f.onReturn
	f.mu.Unlock()

	if len(targets) == 0 {
		if opt.Mandatory && onReturn != nil {
			go onReturn(opt.Message)
		}
		return nil
	}
	for _, q := range targets {
		f.deliverTo(q, opt.Message)
	}
	return nil
}

func (f *FakeAdapter) deliverTo(q *fakeQueue, m Message) {
	f.mu.Lock()
	consumer := q.consumer
	dlx := q.dlx
	f.mu.Unlock()
	if consumer == nil {
		return
	}
	d := Delivery{Message: m}
	d.Ack = func() error { return nil }
	d.Nack = func(requeue bool) error { return nil }
	d.Reject = func(requeue bool) error {
		if !requeue && dlx != "" {
			f.mu.Lock()
			deathHeaders := map[string]any{}
			for k, v := range m.Headers {
				deathHeaders[k] = v
			}
			deathHeaders[HeaderDeath] = true
			f.mu.Unlock()
			go f.Publish(context.Background(), PublishOptions{
				Exchange: dlx,
				Message:  Message{Body: m.Body, Headers: deathHeaders, CorrelationID: m.CorrelationID, ReplyTo: m.ReplyTo},
			})
		}
		return nil
	}
	go consumer(d)
}

func (f *FakeAdapter) OnReturn(fn func(Message)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onReturn = fn
}

func (f *FakeAdapter) OnClose(fn func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onClose = fn
}

func (f *FakeAdapter) Consume(ctx context.Context, queue string, fn func(Delivery)) error {
	f.mu.Lock()
	q, ok := f.queues[queue]
	if !ok {
		q = &fakeQueue{}
		f.queues[queue] = q
	}
	q.consumer = fn
	f.mu.Unlock()
	go func() {
		<-ctx.Done()
		f.mu.Lock()
		q.consumer = nil
		f.mu.Unlock()
	}()
	return nil
}

var _ Adapter = (*FakeAdapter)(nil)
