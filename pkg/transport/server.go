package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/TomasCostaK/secure-comms/pkg/log"
)

// Server defaults.
const (
	// DefaultPort is the default listen port.
	DefaultPort = 5000

	// DefaultWorkers is the default number of acceptor goroutines.
	DefaultWorkers = 2

	// DefaultReadBufferSize is the size of each read from the socket.
	DefaultReadBufferSize = 64 * 1024
)

// ErrIdleTimeout indicates the peer stayed silent longer than the idle timeout.
var ErrIdleTimeout = errors.New("idle timeout")

// Handler receives the events of a single connection. All methods are
// called from the connection's own goroutine, in order: OnConnect once,
// OnData for every inbound chunk in arrival order, then OnClose once.
type Handler interface {
	// OnConnect is called after the connection is accepted and before any
	// data is read. Returning an error closes the connection.
	OnConnect() error

	// OnData is called with each chunk read from the socket.
	OnData(chunk []byte)

	// OnClose is called after the connection has been closed.
	OnClose(err error)
}

// HandlerFactory creates the handler for a newly accepted connection.
type HandlerFactory func(conn *ServerConn) Handler

// ServerConfig configures a transport server.
type ServerConfig struct {
	// Address to listen on (e.g., ":5000" or "127.0.0.1:0").
	Address string

	// Workers is the number of goroutines accepting on the listener.
	Workers int

	// IdleTimeout closes connections that send nothing for this long.
	// Zero disables the timeout.
	IdleTimeout time.Duration

	// ReadBufferSize is the size of each socket read.
	ReadBufferSize int

	// NewHandler creates the per-connection handler. Required.
	NewHandler HandlerFactory

	// Logger for operational output (optional).
	Logger *slog.Logger

	// ProtocolLogger for protocol event capture (optional).
	ProtocolLogger log.Logger

	// OnError is called when an accept error occurs.
	OnError func(err error)
}

// Server accepts TCP connections and feeds their bytes to handlers.
type Server struct {
	config   ServerConfig
	listener net.Listener

	// Active connections
	conns   map[*ServerConn]struct{}
	connsMu sync.RWMutex

	// State
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a new transport server.
func NewServer(config ServerConfig) (*Server, error) {
	if config.NewHandler == nil {
		return nil, fmt.Errorf("NewHandler is required")
	}
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	if config.ReadBufferSize <= 0 {
		config.ReadBufferSize = DefaultReadBufferSize
	}

	return &Server{
		config: config,
		conns:  make(map[*ServerConn]struct{}),
	}, nil
}

// Start starts the server and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("server already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener

	s.running.Store(true)

	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.acceptLoop(i)
	}

	s.logInfo("listening", "addr", listener.Addr().String(), "workers", s.config.Workers)
	return nil
}

// Stop stops the server and closes all connections.
func (s *Server) Stop() error {
	if !s.running.Load() {
		return nil
	}

	s.running.Store(false)
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()

	return nil
}

// Addr returns the server's listen address.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

// acceptLoop accepts incoming connections until the listener closes.
func (s *Server) acceptLoop(worker int) {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			if s.config.OnError != nil {
				s.config.OnError(fmt.Errorf("accept error: %w", err))
			}
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(worker, conn)
	}
}

// handleConnection runs a single connection from accept to close.
func (s *Server) handleConnection(worker int, conn net.Conn) {
	defer s.wg.Done()

	connID := uuid.New().String()
	writer := NewLineWriter(conn)
	if s.config.ProtocolLogger != nil {
		writer.SetLogger(s.config.ProtocolLogger, connID)
	}

	sconn := &ServerConn{
		conn:       conn,
		writer:     writer,
		closeCh:    make(chan struct{}),
		remoteAddr: conn.RemoteAddr(),
		connID:     connID,
	}

	s.logStateChange(sconn, "", "CONNECTED", "")
	s.logDebug("connection accepted", "conn_id", connID, "remote", conn.RemoteAddr().String(), "worker", worker)

	s.connsMu.Lock()
	s.conns[sconn] = struct{}{}
	s.connsMu.Unlock()

	handler := s.config.NewHandler(sconn)

	var loopErr error
	if err := handler.OnConnect(); err != nil {
		loopErr = err
		sconn.Close()
	} else {
		loopErr = s.readLoop(sconn, handler)
	}
	sconn.Close()

	s.connsMu.Lock()
	delete(s.conns, sconn)
	s.connsMu.Unlock()

	handler.OnClose(loopErr)

	reason := ""
	if loopErr != nil {
		reason = loopErr.Error()
	}
	s.logStateChange(sconn, "CONNECTED", "DISCONNECTED", reason)
	s.logDebug("connection closed", "conn_id", connID, "reason", reason)
}

// readLoop delivers socket reads to the handler until the connection
// closes. It returns nil for an orderly close.
func (s *Server) readLoop(c *ServerConn, handler Handler) error {
	buf := make([]byte, s.config.ReadBufferSize)

	for {
		select {
		case <-c.closeCh:
			return nil
		case <-s.ctx.Done():
			return s.ctx.Err()
		default:
		}

		if s.config.IdleTimeout > 0 {
			c.conn.SetReadDeadline(time.Now().Add(s.config.IdleTimeout))
		}

		n, err := c.conn.Read(buf)
		if n > 0 {
			handler.OnData(buf[:n])
		}
		if err != nil {
			if c.IsClosed() {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() || errors.Is(err, os.ErrDeadlineExceeded) {
				return ErrIdleTimeout
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

func (s *Server) logStateChange(c *ServerConn, oldState, newState, reason string) {
	if s.config.ProtocolLogger == nil {
		return
	}
	s.config.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		RemoteAddr:   c.remoteAddr.String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (s *Server) logInfo(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Info(msg, args...)
	}
}

func (s *Server) logDebug(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, args...)
	}
}

// ServerConn represents a client connection to the server.
type ServerConn struct {
	conn       net.Conn
	writer     *LineWriter
	closeCh    chan struct{}
	closeOnce  sync.Once
	remoteAddr net.Addr
	connID     string // Unique connection identifier
}

// RemoteAddr returns the remote address of the client.
func (c *ServerConn) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// ConnID returns the unique connection identifier.
func (c *ServerConn) ConnID() string {
	return c.connID
}

// Send writes one frame to the client.
func (c *ServerConn) Send(data []byte) error {
	if c.IsClosed() {
		return net.ErrClosed
	}
	return c.writer.WriteFrame(data)
}

// Close closes the connection. Safe to call multiple times.
func (c *ServerConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

// IsClosed reports whether Close has been called.
func (c *ServerConn) IsClosed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}
