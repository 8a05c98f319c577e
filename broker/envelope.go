// Package broker implements gestalt's broker-backed pub/sub and RPC
// roles on top of an abstract broker adapter (see Adapter), plus the
// message envelope shared by every role and the helpers that build a
// broker URL from environment variables.
package broker

import "time"

// Message is the broker message shape produced by the encode pipeline
// and consumed on delivery: a body plus the metadata needed to decode it
// and route a reply.
type Message struct {
	Body            []byte
	ContentType     string
	ContentEncoding string
	Timestamp       time.Time
	Headers         map[string]any

	// RPC routing fields, unused by pub/sub.
	CorrelationID string
	ReplyTo       string
	Expiration    string
	DeliveryMode  uint8
}

// HeaderCompression and HeaderTypeID mirror the payload package's header
// keys for the fields a broker message's Headers map may carry.
const (
	HeaderCompression = "compression"
	HeaderTypeID      = "x-type-id"
	HeaderFrom        = "From"
	HeaderDeath       = "x-death"
)
