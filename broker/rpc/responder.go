package rpc

import (
	"context"
	"sync"

	"github.com/claws/gestalt/broker"
	"github.com/claws/gestalt/glog"
	"github.com/claws/gestalt/payload"
	"github.com/claws/gestalt/resumable"
	"go.uber.org/zap"
)

// ResponderOptions configures a Responder.
type ResponderOptions struct {
	URL          string
	ServiceName  string
	ExchangeName string
	DLXName      string
	Adapter      broker.Adapter
	Pipeline     *payload.Pipeline
	// Handle runs the business logic for one request and returns the
	// reply value to encode and send back. It may settle synchronously
	// or return a resumable.Result still pending. Its signature matches
	// middleware.HandlerFunc so a middleware.Chain can wrap it directly.
	Handle func(ctx context.Context, value any, headers map[string]any) (any, resumable.Result)
}

// Responder serves one named service: a non-durable, auto-delete queue
// whose expired requests are moved to the dead-letter exchange by the
// broker itself.
type Responder struct {
	opt ResponderOptions

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

// NewResponder constructs a Responder. DLXName defaults to
// DefaultDLXName.
func NewResponder(opt ResponderOptions) *Responder {
	if opt.DLXName == "" {
		opt.DLXName = DefaultDLXName
	}
	if opt.Adapter == nil {
		opt.Adapter = &broker.AMQPAdapter{}
	}
	if opt.Pipeline == nil {
		opt.Pipeline = payload.Default
	}
	return &Responder{opt: opt}
}

// Start connects, declares the service queue with
// x-dead-letter-exchange set to DLXName, and begins consuming.
func (s *Responder) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	url := s.opt.URL
	if url == "" {
		url = broker.BuildURL(broker.URLOptions{})
	}
	if err := s.opt.Adapter.Connect(ctx, url); err != nil {
		return err
	}
	queue, err := s.opt.Adapter.DeclareQueue(broker.QueueOptions{
		Name:       s.opt.ServiceName,
		AutoDelete: true,
		Arguments:  map[string]any{"x-dead-letter-exchange": s.opt.DLXName},
	})
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	if err := s.opt.Adapter.Consume(runCtx, queue, s.handleDelivery); err != nil {
		cancel()
		return err
	}
	s.started = true
	return nil
}

// Stop closes the channel and connection. Idempotent.
func (s *Responder) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	if s.cancel != nil {
		s.cancel()
	}
	return s.opt.Adapter.Close()
}

func (s *Responder) handleDelivery(d broker.Delivery) {
	value, err := s.opt.Pipeline.Decode(d.Body, d.ContentType, payload.Options{}, d.Headers)
	if err != nil {
		glog.L().Info("rpc responder: decode failed, rejecting", zap.Error(err))
		d.Reject(false)
		return
	}

	var reply any
	var result resumable.Result
	glog.Safe("rpc.Handle", func() {
		reply, result = s.opt.Handle(context.Background(), value, d.Headers)
	})
	if err := resumable.Await(context.Background(), result); err != nil {
		glog.L().Info("rpc responder: handler failed, rejecting", zap.Error(err))
		d.Reject(false)
		return
	}

	contentType, contentEncoding, body, err := s.opt.Pipeline.Encode(reply, payload.Options{}, map[string]any{})
	if err != nil {
		glog.L().Info("rpc responder: encode failed, rejecting", zap.Error(err))
		d.Reject(false)
		return
	}
	pubErr := s.opt.Adapter.Publish(context.Background(), broker.PublishOptions{
		Exchange:   s.opt.ExchangeName,
		RoutingKey: d.ReplyTo,
		Message: broker.Message{
			Body:            body,
			ContentType:     contentType,
			ContentEncoding: string(contentEncoding),
			CorrelationID:   d.CorrelationID,
			DeliveryMode:    d.DeliveryMode,
		},
	})
	if pubErr != nil {
		glog.L().Info("rpc responder: failed to publish reply, rejecting", zap.Error(pubErr))
		d.Reject(false)
		return
	}
	d.Ack()
}
