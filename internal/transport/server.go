package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// State is the connection state of a Server.
type State int

const (
	Disconnected State = iota
	Listening
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Listening:
		return "listening"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "disconnected"
	}
}

type Config struct {
	Host string
	// Port 0 binds an ephemeral port; see Server.Addr.
	Port int

	RxBuffer int
	TxBuffer int

	// Logf defaults to log.Printf.
	Logf func(format string, args ...any)
}

// Server is a single-peer TCP byte pipe between a ground station and the
// simulated board.
//
// Network I/O runs on its own goroutines. AvailableBytes, ReadByte, Drain and
// WriteByte are safe to call from the simulation tick and never block.
type Server struct {
	cfg Config
	ln  net.Listener

	rx   *Queue
	tx   *Queue
	wake chan struct{}

	mu      sync.Mutex
	conn    net.Conn
	state   State
	lastErr string
	peer    string

	connected   atomic.Bool
	stopped     atomic.Bool
	rxTotal     atomic.Uint64
	txTotal     atomic.Uint64
	connections atomic.Uint64
	rejected    atomic.Uint64

	stopOnce   sync.Once
	acceptDone chan struct{}
	wg         sync.WaitGroup
}

// Snapshot is a point-in-time view of a Server.
type Snapshot struct {
	Addr        string `json:"addr"`
	State       string `json:"state"`
	Peer        string `json:"peer,omitempty"`
	LastError   string `json:"last_error,omitempty"`
	Available   int    `json:"available"`
	RxBytes     uint64 `json:"rx_bytes"`
	TxBytes     uint64 `json:"tx_bytes"`
	RxDropped   uint64 `json:"rx_dropped"`
	TxDropped   uint64 `json:"tx_dropped"`
	Connections uint64 `json:"connections"`
	Rejected    uint64 `json:"rejected"`
}

// Listen binds host:port and starts accepting peers.
func Listen(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("transport: port %d out of range", cfg.Port)
	}
	if cfg.RxBuffer <= 0 {
		cfg.RxBuffer = 4096
	}
	if cfg.TxBuffer <= 0 {
		cfg.TxBuffer = 4096
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	lc := net.ListenConfig{Control: listenControl}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, newError("listen", addr, err)
	}

	s := &Server{
		cfg:        cfg,
		ln:         ln,
		rx:         NewQueue(cfg.RxBuffer),
		tx:         NewQueue(cfg.TxBuffer),
		wake:       make(chan struct{}, 1),
		state:      Listening,
		acceptDone: make(chan struct{}),
	}
	go s.acceptLoop()
	return s, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() net.Addr {
	if s == nil || s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// State returns the current connection state.
func (s *Server) State() State {
	if s == nil {
		return Disconnected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AvailableBytes returns a snapshot of received bytes not yet consumed.
func (s *Server) AvailableBytes() int {
	if s == nil || s.stopped.Load() {
		return 0
	}
	return s.rx.Len()
}

// ReadByte pops the oldest received byte. Callers check AvailableBytes first;
// ErrEmpty or ErrContended are returned instead of blocking.
func (s *Server) ReadByte() (byte, error) {
	if s == nil {
		return 0, ErrEmpty
	}
	return s.rx.TryPopByte()
}

// Peer reports whether a peer is connected and which accepted connection it
// is. session increases by one for every peer accepted.
func (s *Server) Peer() (session uint64, connected bool) {
	if s == nil {
		return 0, false
	}
	connected = s.connected.Load()
	return s.connections.Load(), connected
}

// Drain moves up to len(p) received bytes into p in one lock acquisition.
// It returns 0 when the queue is busy.
func (s *Server) Drain(p []byte) int {
	if s == nil || s.stopped.Load() {
		return 0
	}
	return s.rx.TryDrain(p)
}

// WriteByte queues c for the connected peer. Bytes written while no peer is
// connected, or while the transmit queue is busy or full, are dropped.
func (s *Server) WriteByte(c byte) error {
	if s == nil || !s.connected.Load() {
		return nil
	}
	if err := s.tx.TryPushByte(c); err != nil {
		s.tx.dropped.Add(1)
		return nil
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Stop closes the listener and any peer, waits for the I/O goroutines and
// discards buffered bytes. It is safe to call more than once.
func (s *Server) Stop() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped.Store(true)
		conn := s.conn
		s.mu.Unlock()

		_ = s.ln.Close()
		if conn != nil {
			_ = conn.Close()
		}
		<-s.acceptDone
		s.wg.Wait()

		s.rx.Reset()
		s.tx.Reset()
		s.mu.Lock()
		s.conn = nil
		s.peer = ""
		s.state = Disconnected
		s.mu.Unlock()
		s.connected.Store(false)
	})
}

func (s *Server) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{State: Disconnected.String()}
	}
	s.mu.Lock()
	snap := Snapshot{
		State:     s.state.String(),
		Peer:      s.peer,
		LastError: s.lastErr,
	}
	s.mu.Unlock()
	if a := s.Addr(); a != nil {
		snap.Addr = a.String()
	}
	snap.Available = s.AvailableBytes()
	snap.RxBytes = s.rxTotal.Load()
	snap.TxBytes = s.txTotal.Load()
	snap.RxDropped = s.rx.Dropped()
	snap.TxDropped = s.tx.Dropped()
	snap.Connections = s.connections.Load()
	snap.Rejected = s.rejected.Load()
	return snap
}

func (s *Server) acceptLoop() {
	defer close(s.acceptDone)
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.stopped.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.cfg.Logf("transport: accept failed: %v", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}

		s.mu.Lock()
		if s.stopped.Load() {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		if s.conn != nil {
			current := s.peer
			s.mu.Unlock()
			s.rejected.Add(1)
			s.cfg.Logf("transport: rejecting peer %s: already connected to %s", conn.RemoteAddr(), current)
			_ = conn.Close()
			continue
		}
		s.rx.Reset()
		s.tx.Reset()
		s.conn = conn
		s.peer = conn.RemoteAddr().String()
		s.state = Connected
		s.lastErr = ""
		s.connections.Add(1)
		s.connected.Store(true)
		s.wg.Add(2)
		s.mu.Unlock()

		s.cfg.Logf("transport: peer %s connected", conn.RemoteAddr())

		connDone := make(chan struct{})
		go s.readLoop(conn, connDone)
		go s.writeLoop(conn, connDone)
	}
}

func (s *Server) readLoop(conn net.Conn, connDone chan struct{}) {
	defer s.wg.Done()
	defer close(connDone)

	var rxConn uint64
	buf := make([]byte, 512)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			s.rx.Push(buf[:n])
			s.rxTotal.Add(uint64(n))
			rxConn += uint64(n)
		}
		if err != nil {
			s.dropConn(conn, err, rxConn)
			return
		}
	}
}

func (s *Server) writeLoop(conn net.Conn, connDone chan struct{}) {
	defer s.wg.Done()

	buf := make([]byte, s.tx.Cap())
	for {
		select {
		case <-connDone:
			return
		case <-s.wake:
		}
		for {
			n := s.tx.Drain(buf)
			if n == 0 {
				break
			}
			if _, err := conn.Write(buf[:n]); err != nil {
				s.dropConn(conn, err, 0)
				return
			}
			s.txTotal.Add(uint64(n))
		}
	}
}

// dropConn retires conn once; later calls for the same conn are no-ops.
func (s *Server) dropConn(conn net.Conn, cause error, rxConn uint64) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conn = nil
	s.connected.Store(false)
	s.rx.Reset()
	s.tx.Reset()
	peer := s.peer
	s.peer = ""
	stopping := s.stopped.Load()
	switch {
	case stopping:
		s.state = Disconnected
	case errors.Is(cause, io.EOF):
		s.state = Listening
		s.lastErr = ""
	default:
		te := newError("read", peer, cause)
		if te.Kind == KindUnknown {
			te.Kind = KindConnectionLost
		}
		s.state = Failed
		s.lastErr = te.Error()
	}
	lastErr := s.lastErr
	s.mu.Unlock()

	_ = conn.Close()

	if stopping {
		return
	}
	if lastErr == "" {
		s.cfg.Logf("transport: peer %s disconnected (rx %s)", peer, humanize.Bytes(rxConn))
		return
	}
	s.cfg.Logf("transport: peer %s lost: %s (rx %s)", peer, lastErr, humanize.Bytes(rxConn))
}
