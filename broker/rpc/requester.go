// Package rpc implements gestalt's broker RPC roles: a Requester that
// correlates replies by correlation id and surfaces timeouts through a
// dead-letter return path, and a Responder that serves one named
// service queue.
package rpc

import (
	"context"
	"fmt"
	"sync"

	"github.com/claws/gestalt/broker"
	"github.com/claws/gestalt/gerrors"
	"github.com/claws/gestalt/glog"
	"github.com/claws/gestalt/payload"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultDLXName is the dead-letter exchange the requester binds its
// response queue to and the responder's service queue routes expired
// requests through.
const DefaultDLXName = "rpc.dlx"

// RequesterOptions configures a Requester.
type RequesterOptions struct {
	URL           string
	ExchangeName  string
	DLXName       string
	Adapter       broker.Adapter
	Pipeline      *payload.Pipeline
	Serialization string
	Compression   string
}

// slot is one outstanding request's completion point.
type slot struct {
	done chan requesterOutcome
}

type requesterOutcome struct {
	value any
	err   error
}

// Requester declares an exclusive response queue and a headers-match
// dead-letter exchange, then publishes requests and correlates replies
// by correlation id.
type Requester struct {
	opt RequesterOptions

	mu       sync.Mutex
	started  bool
	replyQ   string
	slots    map[string]*slot
	cancel   context.CancelFunc
}

// NewRequester constructs a Requester. ExchangeName defaults to the
// broker's default exchange (empty string); DLXName defaults to
// DefaultDLXName.
func NewRequester(opt RequesterOptions) *Requester {
	if opt.DLXName == "" {
		opt.DLXName = DefaultDLXName
	}
	if opt.Adapter == nil {
		opt.Adapter = &broker.AMQPAdapter{}
	}
	if opt.Pipeline == nil {
		opt.Pipeline = payload.Default
	}
	return &Requester{opt: opt, slots: make(map[string]*slot)}
}

// Start connects, declares the DLX, declares an exclusive server-named
// response queue, binds it to the DLX with a headers-match-any rule
// keyed by the queue's own name, and begins consuming replies.
func (r *Requester) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	url := r.opt.URL
	if url == "" {
		url = broker.BuildURL(broker.URLOptions{})
	}
	if err := r.opt.Adapter.Connect(ctx, url); err != nil {
		return err
	}
	if err := r.opt.Adapter.DeclareExchange(r.opt.DLXName, broker.ExchangeHeaders, true); err != nil {
		return err
	}
	queue, err := r.opt.Adapter.DeclareQueue(broker.QueueOptions{Exclusive: true, AutoDelete: true})
	if err != nil {
		return err
	}
	r.replyQ = queue
	if err := r.opt.Adapter.BindQueue(queue, r.opt.DLXName, "", map[string]any{
		broker.HeaderFrom: queue,
		"x-match":         "any",
	}); err != nil {
		return err
	}

	r.opt.Adapter.OnReturn(r.handleReturn)
	r.opt.Adapter.OnClose(r.handleClose)

	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	if err := r.opt.Adapter.Consume(runCtx, queue, r.handleDelivery); err != nil {
		cancel()
		return err
	}
	r.started = true
	return nil
}

// Stop fails every outstanding slot with gerrors.ErrCancelled, then
// closes the channel and connection. Idempotent.
func (r *Requester) Stop() error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = false
	cancel := r.cancel
	r.failAll(gerrors.ErrCancelled)
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return r.opt.Adapter.Close()
}

func (r *Requester) failAll(err error) {
	for id, s := range r.slots {
		s.done <- requesterOutcome{err: err}
		delete(r.slots, id)
	}
}

// RequestOptions configures one Request call.
type RequestOptions struct {
	ServiceName string
	Expiration  string
}

// Request encodes value, publishes it with routing_key=ServiceName and
// mandatory=true, and blocks until a reply, timeout, undeliverable
// return, or ctx cancellation settles the call.
func (r *Requester) Request(ctx context.Context, value any, opt RequestOptions) (any, error) {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil, gerrors.ErrNotRunning
	}
	replyQ := r.replyQ
	r.mu.Unlock()

	correlationID := uuid.NewString()
	s := &slot{done: make(chan requesterOutcome, 1)}
	r.mu.Lock()
	r.slots[correlationID] = s
	r.mu.Unlock()

	headers := map[string]any{broker.HeaderFrom: replyQ}
	contentType, contentEncoding, body, err := r.opt.Pipeline.Encode(value, payload.Options{
		Serialization: r.opt.Serialization,
		Compression:   r.opt.Compression,
	}, headers)
	if err != nil {
		r.removeSlot(correlationID)
		return nil, err
	}

	msg := broker.Message{
		Body:            body,
		ContentType:     contentType,
		ContentEncoding: string(contentEncoding),
		Headers:         headers,
		CorrelationID:   correlationID,
		ReplyTo:         replyQ,
		Expiration:      opt.Expiration,
	}
	if err := r.opt.Adapter.Publish(ctx, broker.PublishOptions{
		Exchange:   r.opt.ExchangeName,
		RoutingKey: opt.ServiceName,
		Mandatory:  true,
		Message:    msg,
	}); err != nil {
		r.removeSlot(correlationID)
		return nil, err
	}

	select {
	case outcome := <-s.done:
		return outcome.value, outcome.err
	case <-ctx.Done():
		r.removeSlot(correlationID)
		return nil, ctx.Err()
	}
}

func (r *Requester) removeSlot(id string) *slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slots[id]
	delete(r.slots, id)
	return s
}

// handleReturn is invoked when a mandatory publish could not be routed
// (service_name had no bound responder).
func (r *Requester) handleReturn(m broker.Message) {
	if s := r.removeSlot(m.CorrelationID); s != nil {
		s.done <- requesterOutcome{err: gerrors.ErrUndeliverable}
	}
}

func (r *Requester) handleClose(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		err = fmt.Errorf("broker channel closed")
	}
	r.failAll(err)
}

// handleDelivery demultiplexes one reply-queue delivery: an x-death
// header marks a request returned from the DLX after expiring; a
// matching correlation id marks a normal reply.
func (r *Requester) handleDelivery(d broker.Delivery) {
	defer d.Ack()
	if _, expired := d.Headers[broker.HeaderDeath]; expired {
		if s := r.removeSlot(d.CorrelationID); s != nil {
			s.done <- requesterOutcome{err: gerrors.ErrTimeout}
		}
		return
	}
	s := r.removeSlot(d.CorrelationID)
	if s == nil {
		glog.L().Info("rpc requester: reply for unknown correlation id", zap.String("correlation_id", d.CorrelationID))
		return
	}
	value, err := r.opt.Pipeline.Decode(d.Body, d.ContentType, payload.Options{}, d.Headers)
	if err != nil {
		s.done <- requesterOutcome{err: err}
		return
	}
	s.done <- requesterOutcome{value: value}
}
