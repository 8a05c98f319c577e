// Package stream implements gestalt's stream endpoint state machines:
// a reconnecting client with exponential backoff and jitter, and a
// multi-peer server, both routing by opaque peer id.
package stream

import (
	"crypto/tls"
	"math/rand"
	"net"
	"time"

	"github.com/claws/gestalt/framing/stream"
	"github.com/claws/gestalt/glog"
	"github.com/claws/gestalt/peer"
)

// Framing identifies which framing protocol an endpoint frames messages
// with.
type Framing int

const (
	FramingNetstring Framing = iota
	FramingMTI
	FramingDelimiter
)

func newParser(framing Framing, delimiter []byte) stream.Parser {
	switch framing {
	case FramingMTI:
		return &stream.MTIParser{}
	case FramingDelimiter:
		return &stream.DelimiterParser{Delimiter: delimiter}
	default:
		return &stream.NetstringParser{}
	}
}

// DefaultBackoffMaximum caps the reconnect backoff schedule at 10 seconds.
const DefaultBackoffMaximum = 10 * time.Second

const backoffJitter = 0.05

// nextBackoff computes the backoff for the attempt AFTER current:
// next = min(max, current + current/2 + 1).
func nextBackoff(current, max time.Duration) time.Duration {
	next := current + current/2 + time.Second
	if next > max {
		next = max
	}
	return next
}

// jitteredWait samples uniformly from [d*(1-J), d*(1+J)].
func jitteredWait(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := float64(d) * backoffJitter
	lo := float64(d) - jitter
	if lo < 0 {
		lo = 0
	}
	hi := float64(d) + jitter
	return time.Duration(lo + rand.Float64()*(hi-lo))
}

// Peer is one connected stream peer: its opaque id, the raw connection,
// and the framing parser that owns its receive buffer.
type Peer struct {
	ID         peer.ID
	Conn       net.Conn
	LocalAddr  net.Addr
	RemoteAddr net.Addr
	parser     stream.Parser
	writeMu    chanMutex
}

// chanMutex is a channel-based mutex so Peer's zero value is already a
// valid unlocked mutex without an explicit constructor, mirroring how a
// sync.Mutex zero value works but letting writeFrame use select against a
// context for cancellable sends if ever needed.
type chanMutex chan struct{}

func (m *chanMutex) lock() {
	if *m == nil {
		*m = make(chanMutex, 1)
	}
	*m <- struct{}{}
}

func (m *chanMutex) unlock() {
	<-*m
}

// Callbacks are the user hooks an endpoint invokes. Every invocation is
// wrapped with glog.Safe so a panicking callback cannot break the
// endpoint.
type Callbacks struct {
	OnStarted  func()
	OnStopped  func()
	OnPeerUp   func(id peer.ID)
	OnPeerDown func(id peer.ID, err error)
	OnMessage  func(id peer.ID, payload []byte, typeID uint32, haveTypeID bool)
}

func (c Callbacks) started() {
	if c.OnStarted != nil {
		glog.Safe("stream.OnStarted", c.OnStarted)
	}
}

func (c Callbacks) stopped() {
	if c.OnStopped != nil {
		glog.Safe("stream.OnStopped", c.OnStopped)
	}
}

func (c Callbacks) peerUp(id peer.ID) {
	if c.OnPeerUp != nil {
		glog.Safe("stream.OnPeerUp", func() { c.OnPeerUp(id) })
	}
}

func (c Callbacks) peerDown(id peer.ID, err error) {
	if c.OnPeerDown != nil {
		glog.Safe("stream.OnPeerDown", func() { c.OnPeerDown(id, err) })
	}
}

func (c Callbacks) message(id peer.ID, payload []byte, typeID uint32, haveTypeID bool) {
	if c.OnMessage != nil {
		glog.Safe("stream.OnMessage", func() { c.OnMessage(id, payload, typeID, haveTypeID) })
	}
}

// readPeer reads frames off the peer and feeds them to the parser,
// invoking cb.message for each one recovered, until the connection fails
// or the parser reports an invalid frame.
func readPeer(p *Peer, cb Callbacks, done chan<- error) {
	buf := make([]byte, 4096)
	for {
		n, err := p.Conn.Read(buf)
		if n > 0 {
			msgs, perr := p.parser.Feed(buf[:n])
			for _, m := range msgs {
				cb.message(p.ID, m.Payload, m.TypeID, m.HaveTypeID)
			}
			if perr != nil {
				p.Conn.Close()
				done <- perr
				return
			}
		}
		if err != nil {
			done <- err
			return
		}
	}
}

// writeFrame builds the wire frame for payload/typeID and writes it
// atomically to conn, serialized against concurrent writers on the same
// peer.
func (p *Peer) writeFrame(typeID uint32, payload []byte) error {
	frame, err := p.parser.Frame(payload, typeID)
	if err != nil {
		return err
	}
	p.writeMu.lock()
	defer p.writeMu.unlock()
	_, err = p.Conn.Write(frame)
	return err
}

// TLSConfig is accepted by both endpoint modes; nil means plaintext.
type TLSConfig = tls.Config
