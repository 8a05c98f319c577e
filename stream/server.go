// Package stream's server mode binds a listener and accepts connections
// from any number of peers, each framed independently and tracked by its
// opaque peer id. Read loops run one per connection (reads must stay
// sequential to parse frame boundaries); writes to a given peer are
// serialized through that peer's own write lock so broadcast sends from
// multiple goroutines never interleave their frames.
package stream

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"sync/atomic"

	"github.com/claws/gestalt/gerrors"
	"github.com/claws/gestalt/glog"
	"github.com/claws/gestalt/peer"
	"github.com/claws/gestalt/serialization"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

// ServerOptions configures a StreamServer.
type ServerOptions struct {
	Address     string
	Framing     Framing
	Delimiter   []byte
	TLS         *TLSConfig
	Callbacks   Callbacks
	Serializers *serialization.Registry
}

// RegisterMessage binds id (or the next free id when 0) to prototype's
// type in the configured serializer registry; see StreamClient.RegisterMessage.
func (s *StreamServer) RegisterMessage(id int, prototype proto.Message) int {
	registry := s.opt.Serializers
	if registry == nil {
		registry = serialization.Default
	}
	return registry.RegisterProtobufMessage(id, prototype)
}

// StreamServer is the server-mode stream endpoint: it binds a listener,
// accepts any number of peers, and routes sends by peer id.
type StreamServer struct {
	opt   ServerOptions
	state atomic.Int32

	mu       sync.Mutex
	listener net.Listener
	peers    map[peer.ID]*Peer
	wg       sync.WaitGroup
}

// NewStreamServer constructs a StreamServer from opt.
func NewStreamServer(opt ServerOptions) *StreamServer {
	return &StreamServer{opt: opt, peers: make(map[peer.ID]*Peer)}
}

// Start is idempotent: calling it while already running is a no-op. It
// binds the listener synchronously so a failure to bind is returned
// immediately instead of being reported only through a callback.
func (s *StreamServer) Start() error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return nil
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", s.opt.Address)
	if err != nil {
		s.state.Store(int32(StateIdle))
		return err
	}
	if s.opt.TLS != nil {
		ln = tls.NewListener(ln, s.opt.TLS)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.state.Store(int32(StateConnected))
	s.opt.Callbacks.started()
	go s.acceptLoop(ln)
	return nil
}

// Stop is idempotent. It closes the listener first so no new peers are
// accepted, then disconnects every current peer (each firing OnPeerDown),
// waits for their read loops to finish, and finally emits OnStopped.
func (s *StreamServer) Stop() {
	current := ClientState(s.state.Load())
	if current == StateIdle || current == StateStopping {
		return
	}
	s.state.Store(int32(StateStopping))
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	peers := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()
	if ln != nil {
		ln.Close()
	}
	for _, p := range peers {
		p.Conn.Close()
	}
	s.wg.Wait()
	s.state.Store(int32(StateIdle))
	s.opt.Callbacks.stopped()
}

// Send writes payload to peerID, or broadcasts to every connected peer
// when peerID is nil.
func (s *StreamServer) Send(payload []byte, typeID uint32, peerID *peer.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if peerID != nil {
		p, ok := s.peers[*peerID]
		if !ok {
			return gerrors.ErrNotRunning
		}
		return p.writeFrame(typeID, payload)
	}
	var firstErr error
	for _, p := range s.peers {
		if err := p.writeFrame(typeID, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Bindings returns the listener's bound address while running, empty
// otherwise.
func (s *StreamServer) Bindings() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return []net.Addr{s.listener.Addr()}
}

// Peers returns the ids of all currently connected peers.
func (s *StreamServer) Peers() []peer.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]peer.ID, 0, len(s.peers))
	for id := range s.peers {
		ids = append(ids, id)
	}
	return ids
}

func (s *StreamServer) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ClientState(s.state.Load()) == StateStopping {
				return
			}
			glog.L().Info("stream server accept failed", zap.Error(err))
			return
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *StreamServer) handleConn(conn net.Conn) {
	defer s.wg.Done()
	id, err := peer.New()
	if err != nil {
		conn.Close()
		return
	}
	p := &Peer{ID: id, Conn: conn, LocalAddr: conn.LocalAddr(), RemoteAddr: conn.RemoteAddr(), parser: newParser(s.opt.Framing, s.opt.Delimiter)}
	s.mu.Lock()
	s.peers[id] = p
	s.mu.Unlock()
	s.opt.Callbacks.peerUp(id)

	readErrs := make(chan error, 1)
	go readPeer(p, s.opt.Callbacks, readErrs)
	readErr := <-readErrs

	s.mu.Lock()
	delete(s.peers, id)
	s.mu.Unlock()
	s.opt.Callbacks.peerDown(id, readErr)
}
