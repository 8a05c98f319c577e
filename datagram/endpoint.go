// Package datagram implements gestalt's datagram endpoint: a single UDP
// socket, bound locally or connected to one remote address, framed by
// one of the datagram protocols. Unlike the stream endpoints there is no
// reconnect logic and no per-peer map — UDP is connectionless, so the
// endpoint itself is the one peer other code needs an id for.
package datagram

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/claws/gestalt/framing/datagram"
	"github.com/claws/gestalt/gerrors"
	"github.com/claws/gestalt/glog"
	"github.com/claws/gestalt/peer"
	"go.uber.org/zap"
)

// Framing identifies which datagram protocol an endpoint frames
// messages with.
type Framing int

const (
	FramingNetstring Framing = iota
	FramingMTI
)

func newProtocol(framing Framing) datagram.Protocol {
	if framing == FramingMTI {
		return datagram.MTIProtocol{}
	}
	return datagram.NetstringProtocol{}
}

// Callbacks are the user hooks a DatagramEndpoint invokes. Every
// invocation is wrapped with glog.Safe so a panicking callback cannot
// bring down the read loop.
type Callbacks struct {
	OnStarted func()
	OnStopped func()
	OnMessage func(payload []byte, typeID uint32, haveTypeID bool, addr net.Addr)
}

func (c Callbacks) started() {
	if c.OnStarted != nil {
		glog.Safe("datagram.OnStarted", c.OnStarted)
	}
}

func (c Callbacks) stopped() {
	if c.OnStopped != nil {
		glog.Safe("datagram.OnStopped", c.OnStopped)
	}
}

func (c Callbacks) message(payload []byte, typeID uint32, haveTypeID bool, addr net.Addr) {
	if c.OnMessage != nil {
		glog.Safe("datagram.OnMessage", func() { c.OnMessage(payload, typeID, haveTypeID, addr) })
	}
}

// Options configures a DatagramEndpoint. Exactly one of LocalAddr and
// RemoteAddr must be set: LocalAddr binds a socket that can exchange
// datagrams with any sender; RemoteAddr connects a socket to a single
// peer, which the kernel then also uses to filter incoming datagrams to
// only that source.
type Options struct {
	LocalAddr      string
	RemoteAddr     string
	Framing        Framing
	ReuseAddress   bool
	ReusePort      bool
	AllowBroadcast bool
	Callbacks      Callbacks
}

const (
	stateIdle int32 = iota
	stateRunning
	stateStopping
)

// DatagramEndpoint is gestalt's UDP endpoint: one socket, one protocol
// instance, one opaque peer id representing the endpoint itself.
type DatagramEndpoint struct {
	opt      Options
	state    atomic.Int32
	protocol datagram.Protocol
	id       peer.ID

	mu         sync.Mutex
	conn       net.PacketConn
	localAddr  net.Addr
	remoteAddr net.Addr
	wg         sync.WaitGroup
}

// NewDatagramEndpoint constructs a DatagramEndpoint from opt.
func NewDatagramEndpoint(opt Options) *DatagramEndpoint {
	return &DatagramEndpoint{opt: opt, protocol: newProtocol(opt.Framing)}
}

// ID returns the opaque id this endpoint's single virtual peer is
// assigned by Start; each successful Start assigns a fresh one, and it is
// empty before the first Start.
func (e *DatagramEndpoint) ID() peer.ID {
	return e.id
}

// Bindings returns the address the socket is bound to while running
// (non-empty only when started with LocalAddr), empty otherwise.
func (e *DatagramEndpoint) Bindings() []net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.localAddr == nil || e.opt.RemoteAddr != "" {
		return nil
	}
	return []net.Addr{e.localAddr}
}

// Connections returns the remote address the socket is connected to
// while running (non-empty only when started with RemoteAddr), empty
// otherwise.
func (e *DatagramEndpoint) Connections() []net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.remoteAddr == nil {
		return nil
	}
	return []net.Addr{e.remoteAddr}
}

func controlFor(opt Options) func(string, string, syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			if opt.ReuseAddress {
				sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
			}
			if sockErr == nil && opt.ReusePort {
				sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEPORT, 1)
			}
			if sockErr == nil && opt.AllowBroadcast {
				sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
			}
		})
		if err != nil {
			return err
		}
		return sockErr
	}
}

// Start binds (LocalAddr) or connects (RemoteAddr) the UDP socket and
// spawns the read loop. It is idempotent: calling it while already
// running is a no-op.
func (e *DatagramEndpoint) Start() error {
	hasLocal := e.opt.LocalAddr != ""
	hasRemote := e.opt.RemoteAddr != ""
	if hasLocal == hasRemote {
		return gerrors.ErrInvalidConfiguration
	}
	if !e.state.CompareAndSwap(stateIdle, stateRunning) {
		return nil
	}

	id, err := peer.New()
	if err != nil {
		e.state.Store(stateIdle)
		return err
	}
	e.id = id

	var conn net.PacketConn
	if hasLocal {
		lc := net.ListenConfig{Control: controlFor(e.opt)}
		conn, err = lc.ListenPacket(context.Background(), "udp", e.opt.LocalAddr)
	} else {
		dialer := net.Dialer{Control: controlFor(e.opt)}
		var c net.Conn
		c, err = dialer.Dial("udp", e.opt.RemoteAddr)
		if err == nil {
			conn = c.(net.PacketConn)
		}
	}
	if err != nil {
		e.state.Store(stateIdle)
		return err
	}

	e.mu.Lock()
	e.conn = conn
	e.localAddr = conn.LocalAddr()
	if hasRemote {
		e.remoteAddr = conn.(net.Conn).RemoteAddr()
	}
	e.mu.Unlock()

	e.opt.Callbacks.started()
	e.wg.Add(1)
	go e.readLoop(conn)
	return nil
}

// Stop closes the socket and waits for the read loop to exit. Idempotent.
func (e *DatagramEndpoint) Stop() {
	if !e.state.CompareAndSwap(stateRunning, stateStopping) {
		return
	}
	e.mu.Lock()
	conn := e.conn
	e.conn = nil
	e.localAddr = nil
	e.remoteAddr = nil
	e.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	e.wg.Wait()
	e.state.Store(stateIdle)
	e.opt.Callbacks.stopped()
}

// Send builds one datagram for payload/typeID and writes it. addr is
// required when the endpoint was started with LocalAddr and ignored
// (the connected remote is used instead) when started with RemoteAddr.
func (e *DatagramEndpoint) Send(payload []byte, typeID uint32, addr net.Addr) error {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return gerrors.ErrNotRunning
	}
	frame, err := e.protocol.Build(payload, typeID)
	if err != nil {
		return err
	}
	if e.opt.RemoteAddr != "" {
		// conn was dialed, not listened: it is already connected to the
		// one remote peer, and net.UDPConn.WriteTo always rejects a nil
		// address by type-asserting it to *net.UDPAddr regardless of
		// connection state. Use Write on the net.Conn view instead.
		_, err = conn.(net.Conn).Write(frame)
		return err
	}
	if addr == nil {
		return gerrors.ErrInvalidConfiguration
	}
	_, err = conn.WriteTo(frame, addr)
	return err
}

func (e *DatagramEndpoint) readLoop(conn net.PacketConn) {
	defer e.wg.Done()
	buf := make([]byte, 65535)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if n > 0 {
			msg, perr := e.protocol.Parse(buf[:n])
			if perr != nil {
				glog.L().Info("datagram endpoint: dropping invalid datagram", zap.Error(perr))
			} else {
				e.opt.Callbacks.message(msg.Payload, msg.TypeID, msg.HaveTypeID, addr)
			}
		}
		if err != nil {
			return
		}
	}
}
