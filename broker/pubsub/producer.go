// Package pubsub implements gestalt's broker pub/sub roles: a Producer
// publishing onto a topic exchange, and a Consumer bound to it by
// routing key.
package pubsub

import (
	"context"
	"sync"
	"time"

	"github.com/claws/gestalt/broker"
	"github.com/claws/gestalt/payload"
)

// ProducerOptions configures a Producer.
type ProducerOptions struct {
	URL                  string
	ExchangeName         string
	Adapter              broker.Adapter
	SerializationDefault string
	CompressionDefault   string
	Pipeline             *payload.Pipeline
}

// Producer opens a connection, a channel, and a topic exchange, then
// publishes encoded values onto it.
type Producer struct {
	opt ProducerOptions

	mu      sync.Mutex
	started bool
}

// NewProducer constructs a Producer. ExchangeName defaults to
// "gestalt.topic" when empty.
func NewProducer(opt ProducerOptions) *Producer {
	if opt.ExchangeName == "" {
		opt.ExchangeName = "gestalt.topic"
	}
	if opt.Adapter == nil {
		opt.Adapter = &broker.AMQPAdapter{}
	}
	if opt.Pipeline == nil {
		opt.Pipeline = payload.Default
	}
	return &Producer{opt: opt}
}

// Start opens the connection, channel, and declares the topic exchange.
func (p *Producer) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	url := p.opt.URL
	if url == "" {
		url = broker.BuildURL(broker.URLOptions{})
	}
	if err := p.opt.Adapter.Connect(ctx, url); err != nil {
		return err
	}
	if err := p.opt.Adapter.DeclareExchange(p.opt.ExchangeName, broker.ExchangeTopic, true); err != nil {
		return err
	}
	p.started = true
	return nil
}

// Stop closes the channel then the connection. Idempotent.
func (p *Producer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return nil
	}
	p.started = false
	return p.opt.Adapter.Close()
}

// PublishOptions configures one PublishMessage call.
type PublishOptions struct {
	RoutingKey     string
	ContentType    string
	Compression    string
	Headers        map[string]any
	TypeIdentifier int
	HaveTypeID     bool
}

// PublishMessage runs the encode pipeline over value and publishes the
// result with mandatory=false: unroutable messages are silently
// dropped, matching a topic exchange with no guaranteed subscriber.
func (p *Producer) PublishMessage(ctx context.Context, value any, opt PublishOptions) error {
	headers := opt.Headers
	if headers == nil {
		headers = make(map[string]any)
	}
	serialization := opt.ContentType
	if serialization == "" {
		serialization = p.opt.SerializationDefault
	}
	compression := opt.Compression
	if compression == "" {
		compression = p.opt.CompressionDefault
	}
	contentType, contentEncoding, body, err := p.opt.Pipeline.Encode(value, payload.Options{
		Serialization:  serialization,
		Compression:    compression,
		TypeIdentifier: opt.TypeIdentifier,
		HaveTypeID:     opt.HaveTypeID,
	}, headers)
	if err != nil {
		return err
	}
	msg := broker.Message{
		Body:            body,
		ContentType:     contentType,
		ContentEncoding: string(contentEncoding),
		Timestamp:       timestamp(),
		Headers:         headers,
	}
	return p.opt.Adapter.Publish(ctx, broker.PublishOptions{
		Exchange:   p.opt.ExchangeName,
		RoutingKey: opt.RoutingKey,
		Mandatory:  false,
		Message:    msg,
	})
}

func timestamp() time.Time {
	return time.Now().UTC()
}
