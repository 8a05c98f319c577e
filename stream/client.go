// StreamClient is the client-mode stream endpoint: it connects to a
// single remote address, tracks the one resulting peer, and reconnects
// with exponential backoff and jitter when the connection drops and
// reconnect is enabled.
package stream

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/claws/gestalt/gerrors"
	"github.com/claws/gestalt/glog"
	"github.com/claws/gestalt/peer"
	"github.com/claws/gestalt/serialization"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

// ClientState is the stream client's connection state machine.
type ClientState int32

const (
	StateIdle ClientState = iota
	StateBackingOff
	StateConnecting
	StateConnected
	StateStopping
)

// ClientOptions configures a StreamClient.
type ClientOptions struct {
	Address        string
	Framing        Framing
	Delimiter      []byte
	Reconnect      bool
	BackoffMaximum time.Duration
	TLS            *TLSConfig
	Callbacks      Callbacks
	// Serializers backs RegisterMessage; defaults to serialization.Default.
	Serializers *serialization.Registry
}

// RegisterMessage binds id (or the next free id when 0) to prototype's
// type in the configured serializer registry, so callers framing with
// mti and a schema-bound serializer don't need to reach into the
// serialization package directly.
func (c *StreamClient) RegisterMessage(id int, prototype proto.Message) int {
	return c.opt.serializers().RegisterProtobufMessage(id, prototype)
}

func (o ClientOptions) serializers() *serialization.Registry {
	if o.Serializers != nil {
		return o.Serializers
	}
	return serialization.Default
}

// StreamClient is the client-mode stream endpoint.
type StreamClient struct {
	opt   ClientOptions
	state atomic.Int32

	mu      sync.Mutex
	peer    *Peer
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewStreamClient constructs a StreamClient from opt. BackoffMaximum
// defaults to DefaultBackoffMaximum when zero.
func NewStreamClient(opt ClientOptions) *StreamClient {
	if opt.BackoffMaximum == 0 {
		opt.BackoffMaximum = DefaultBackoffMaximum
	}
	return &StreamClient{opt: opt}
}

// State returns the client's current connection state.
func (c *StreamClient) State() ClientState {
	return ClientState(c.state.Load())
}

// Connections returns the remote address of the currently connected
// peer, empty when not connected.
func (c *StreamClient) Connections() []net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.peer == nil {
		return nil
	}
	return []net.Addr{c.peer.RemoteAddr}
}

// Start is idempotent: calling it while already running is a no-op.
func (c *StreamClient) Start() {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancel = cancel
	c.stopped = make(chan struct{})
	c.mu.Unlock()
	c.opt.Callbacks.started()
	go c.run(ctx)
}

// Stop is idempotent. It cancels any in-flight backoff wait or connect
// attempt, disconnects the current peer if any, and synchronously
// delivers OnStopped before returning.
func (c *StreamClient) Stop() {
	current := ClientState(c.state.Load())
	if current == StateIdle || current == StateStopping {
		return
	}
	c.state.Store(int32(StateStopping))
	c.mu.Lock()
	cancel := c.cancel
	p := c.peer
	stopped := c.stopped
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if p != nil {
		p.Conn.Close()
	}
	if stopped != nil {
		<-stopped
	}
	c.state.Store(int32(StateIdle))
	c.opt.Callbacks.stopped()
}

// Send writes payload to the connected peer. If there is no connected
// peer it returns gerrors.ErrNotRunning.
func (c *StreamClient) Send(payload []byte, typeID uint32) error {
	c.mu.Lock()
	p := c.peer
	c.mu.Unlock()
	if p == nil {
		return gerrors.ErrNotRunning
	}
	return p.writeFrame(typeID, payload)
}

func (c *StreamClient) run(ctx context.Context) {
	defer close(c.stopped)
	backoff := time.Duration(0)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c.state.Store(int32(StateConnecting))
		conn, err := c.dial(ctx)
		if err != nil {
			glog.L().Info("stream client connect refused", zap.String("address", c.opt.Address), zap.Error(err))
			if !c.opt.Reconnect {
				c.state.Store(int32(StateIdle))
				return
			}
			backoff = c.waitBackoff(ctx, backoff)
			if ctx.Err() != nil {
				return
			}
			continue
		}

		backoff = 0
		id, err := peer.New()
		if err != nil {
			conn.Close()
			continue
		}
		p := &Peer{ID: id, Conn: conn, LocalAddr: conn.LocalAddr(), RemoteAddr: conn.RemoteAddr(), parser: newParser(c.opt.Framing, c.opt.Delimiter)}
		c.mu.Lock()
		c.peer = p
		c.mu.Unlock()
		c.state.Store(int32(StateConnected))
		c.opt.Callbacks.peerUp(id)

		readErrs := make(chan error, 1)
		go readPeer(p, c.opt.Callbacks, readErrs)
		readErr := <-readErrs

		c.mu.Lock()
		c.peer = nil
		c.mu.Unlock()
		c.opt.Callbacks.peerDown(id, readErr)

		if ctx.Err() != nil {
			return
		}
		if !c.opt.Reconnect {
			c.state.Store(int32(StateIdle))
			return
		}
		backoff = c.waitBackoff(ctx, backoff)
		if ctx.Err() != nil {
			return
		}
	}
}

func (c *StreamClient) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", c.opt.Address)
	if err != nil {
		return nil, err
	}
	if c.opt.TLS != nil {
		tlsConn := tls.Client(conn, c.opt.TLS)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		return tlsConn, nil
	}
	return conn, nil
}

// waitBackoff sleeps the jittered current backoff, logs the retry
// attempt, and returns the backoff to use for the attempt after this
// one.
func (c *StreamClient) waitBackoff(ctx context.Context, current time.Duration) time.Duration {
	c.state.Store(int32(StateBackingOff))
	wait := jitteredWait(current)
	glog.L().Info("attempting reconnect", zap.Duration("in", wait))
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
	return nextBackoff(current, c.opt.BackoffMaximum)
}

