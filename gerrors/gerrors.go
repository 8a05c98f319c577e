// Package gerrors defines the sentinel error kinds shared by every
// component of gestalt. Components wrap one of these with fmt.Errorf and
// "%w" so callers can branch on kind with errors.Is while still seeing a
// descriptive message.
package gerrors

import "errors"

var (
	// ErrUnknownCodec is returned when a registry is asked for a codec by
	// a name or MIME type it does not hold.
	ErrUnknownCodec = errors.New("gestalt: unknown codec")

	// ErrTypeMismatch is returned when a value of the wrong Go type is
	// handed to a codec, e.g. a non-[]byte value to the raw serializer.
	ErrTypeMismatch = errors.New("gestalt: type mismatch")

	// ErrInvalidFrame is returned when a framing parser encounters a
	// length field that is zero where forbidden, or exceeds MaxPayloadLen.
	ErrInvalidFrame = errors.New("gestalt: invalid frame")

	// ErrInvalidConfiguration is returned for contradictory endpoint start
	// options, such as supplying both or neither of a local and remote
	// datagram address.
	ErrInvalidConfiguration = errors.New("gestalt: invalid configuration")

	// ErrConnectRefused signals a lower-level connection refusal.
	// middleware.Retry treats it as retryable rather than a terminal
	// failure.
	ErrConnectRefused = errors.New("gestalt: connect refused")

	// ErrUndeliverable is returned to an RPC requester whose request was
	// returned by the broker as unroutable.
	ErrUndeliverable = errors.New("gestalt: message undeliverable")

	// ErrTimeout is returned to an RPC requester whose request expired and
	// was routed back through the dead-letter exchange.
	ErrTimeout = errors.New("gestalt: request timed out")

	// ErrCancelled is returned to outstanding RPC requests when the
	// requester is stopped. A channel close fails them with the close
	// error instead.
	ErrCancelled = errors.New("gestalt: request cancelled")

	// ErrNotRunning is returned when an operation that requires a started
	// endpoint or role is attempted before start or after stop.
	ErrNotRunning = errors.New("gestalt: not running")

	// ErrRateLimited is returned by middleware.RateLimit when a request
	// arrives with no tokens available in the bucket.
	ErrRateLimited = errors.New("gestalt: rate limited")
)
