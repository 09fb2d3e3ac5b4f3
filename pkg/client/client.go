// Package client implements the uploading side of the protocol.
//
// A Client dials a server, completes the key exchange, optionally
// negotiates an algorithm suite, then streams one file as base64 DATA
// messages and closes the session:
//
//	c, err := client.Dial(ctx, "localhost:5000", client.Config{})
//	if err != nil { ... }
//	n, err := c.Upload("report.pdf", f)
package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/TomasCostaK/secure-comms/pkg/handshake"
	"github.com/TomasCostaK/secure-comms/pkg/log"
	"github.com/TomasCostaK/secure-comms/pkg/negotiation"
	"github.com/TomasCostaK/secure-comms/pkg/transport"
	"github.com/TomasCostaK/secure-comms/pkg/wire"
)

// Client defaults.
const (
	// DefaultChunkSize is the number of raw bytes per DATA message.
	DefaultChunkSize = 16 * 1024

	// DefaultDialTimeout bounds connection establishment.
	DefaultDialTimeout = 10 * time.Second

	// DefaultReplyTimeout bounds the wait for each server reply.
	DefaultReplyTimeout = 30 * time.Second
)

// Client errors.
var (
	// ErrServerError indicates the server answered with an ERROR message.
	ErrServerError = errors.New("server reported an error")

	// ErrUnexpectedReply indicates a reply of the wrong type.
	ErrUnexpectedReply = errors.New("unexpected reply")

	// ErrNegotiationFailed indicates the server accepted no offered suite.
	ErrNegotiationFailed = errors.New("negotiation failed")

	// ErrNotOpen indicates Write without a successful Open.
	ErrNotOpen = errors.New("no file open")
)

// Config configures a client.
type Config struct {
	// ChunkSize is the number of raw bytes per DATA message.
	ChunkSize int

	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration

	// ReplyTimeout bounds the wait for each server reply.
	ReplyTimeout time.Duration

	// Retry controls reconnect attempts while dialing.
	Retry RetryConfig

	// Random is the entropy source for key generation (crypto/rand when nil).
	Random io.Reader

	// Logger for operational output (optional).
	Logger *slog.Logger

	// ProtocolLogger for protocol event capture (optional).
	ProtocolLogger log.Logger
}

// Client is one upload connection.
type Client struct {
	config Config
	conn   net.Conn
	reader *transport.LineReader
	writer *transport.LineWriter
	engine *handshake.Engine
	logger *slog.Logger

	pending [][]byte
	buf     []byte

	mu     sync.Mutex
	open   bool
	closed bool
}

// Dial connects to addr, retrying per config.Retry, and completes the key
// exchange.
func Dial(ctx context.Context, addr string, config Config) (*Client, error) {
	if config.DialTimeout <= 0 {
		config.DialTimeout = DefaultDialTimeout
	}
	conn, err := connect(ctx, addr, config)
	if err != nil {
		return nil, err
	}

	c := New(conn, config)
	if err := c.handshake(); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// New wraps an established connection. The caller must run the key
// exchange via Dial, so New is mostly useful with net.Pipe in tests.
func New(conn net.Conn, config Config) *Client {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkSize
	}
	if config.ReplyTimeout <= 0 {
		config.ReplyTimeout = DefaultReplyTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	connID := "client-" + conn.LocalAddr().String()
	reader := transport.NewLineReader()
	writer := transport.NewLineWriter(conn)
	if config.ProtocolLogger != nil {
		reader.SetLogger(config.ProtocolLogger, connID)
		writer.SetLogger(config.ProtocolLogger, connID)
	}

	return &Client{
		config: config,
		conn:   conn,
		reader: reader,
		writer: writer,
		engine: handshake.NewEngine(config.Random),
		logger: logger.With("server", conn.RemoteAddr().String()),
		buf:    make([]byte, transport.DefaultReadBufferSize),
	}
}

// Handshake runs the key exchange on a client created with New.
func (c *Client) Handshake() error {
	return c.handshake()
}

func (c *Client) handshake() error {
	var dhInit wire.DHInit
	if err := c.expect(wire.TypeDHInit, &dhInit); err != nil {
		return err
	}
	if dhInit.Data.P == nil || dhInit.Data.G == nil {
		return fmt.Errorf("%w: domain parameters missing", ErrUnexpectedReply)
	}
	params := &handshake.Parameters{P: dhInit.Data.P, G: dhInit.Data.G}

	var server wire.DHKeyExchange
	if err := c.expect(wire.TypeDHKeyExchange, &server); err != nil {
		return err
	}
	if server.Data == nil || server.Data.PubKey == nil {
		return fmt.Errorf("%w: server key missing", ErrUnexpectedReply)
	}

	pemText, err := c.engine.Start(params)
	if err != nil {
		return fmt.Errorf("key exchange: %w", err)
	}
	if _, err := c.engine.Complete(*server.Data.PubKey); err != nil {
		return fmt.Errorf("key exchange: %w", err)
	}
	if err := c.send(wire.NewDHKeyExchange(pemText)); err != nil {
		return err
	}

	c.logger.Debug("key exchange complete", "modulus_bits", params.P.BitLen())
	return nil
}

// Key returns the derived key material.
func (c *Client) Key() []byte {
	return c.engine.Key()
}

// Negotiate offers algorithm lists and returns the server's choice.
func (c *Client) Negotiate(offer negotiation.Offer) (negotiation.Suite, error) {
	if err := c.send(wire.NewNegotiate(offer.Ciphers, offer.Modes, offer.Digests)); err != nil {
		return negotiation.Suite{}, err
	}

	var reply wire.CipherChosen
	if err := c.expect(wire.TypeCipherChosen, &reply); err != nil {
		return negotiation.Suite{}, err
	}
	suite := negotiation.Suite{
		Cipher: deref(reply.Cipher),
		Mode:   deref(reply.Mode),
		Digest: deref(reply.Digest),
	}
	if !suite.Complete() {
		c.shutdown()
		return suite, fmt.Errorf("%w: server chose %s", ErrNegotiationFailed, suite)
	}
	return suite, nil
}

// Open asks the server to create name.
func (c *Client) Open(name string) error {
	if err := c.send(wire.NewOpen(name)); err != nil {
		return err
	}
	if err := c.expect(wire.TypeOK, nil); err != nil {
		return err
	}

	c.mu.Lock()
	c.open = true
	c.mu.Unlock()
	return nil
}

// Write sends p as one or more DATA messages.
func (c *Client) Write(p []byte) (int, error) {
	c.mu.Lock()
	open := c.open
	c.mu.Unlock()
	if !open {
		return 0, ErrNotOpen
	}

	written := 0
	for len(p) > 0 {
		n := min(len(p), c.config.ChunkSize)
		if err := c.send(wire.NewData(base64.StdEncoding.EncodeToString(p[:n]))); err != nil {
			return written, err
		}
		written += n
		p = p[n:]
	}
	return written, nil
}

// Upload opens name, streams r and closes the session.
func (c *Client) Upload(name string, r io.Reader) (int64, error) {
	if err := c.Open(name); err != nil {
		return 0, err
	}
	n, err := io.CopyBuffer(c, r, make([]byte, c.config.ChunkSize))
	if err != nil {
		c.shutdown()
		return n, err
	}
	return n, c.Close()
}

// Close sends CLOSE and waits for the server to drop the connection. An
// ERROR message received meanwhile is returned as ErrServerError.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.send(wire.NewClose()); err != nil {
		c.shutdown()
		return err
	}

	for {
		env, err := c.next()
		if err != nil {
			c.shutdown()
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if env.Type == wire.TypeError {
			c.shutdown()
			return ErrServerError
		}
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.open = false
		c.conn.Close()
	}
}

func (c *Client) send(msg any) error {
	data, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	if err := c.writer.WriteFrame(data); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// expect reads the next message, which must be of type want, and binds it
// into v when v is not nil.
func (c *Client) expect(want wire.MessageType, v any) error {
	env, err := c.next()
	if err != nil {
		return err
	}
	if env.Type == wire.TypeError {
		c.shutdown()
		return ErrServerError
	}
	if env.Type != want {
		return fmt.Errorf("%w: got %s, want %s", ErrUnexpectedReply, env.Type, want)
	}
	if v != nil {
		return env.Bind(v)
	}
	return nil
}

// next returns the next decoded message from the server.
func (c *Client) next() (*wire.Envelope, error) {
	for len(c.pending) == 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReplyTimeout))
		n, err := c.conn.Read(c.buf)
		if n > 0 {
			frames, ferr := c.reader.Feed(c.buf[:n])
			c.pending = append(c.pending, frames...)
			if ferr != nil {
				return nil, ferr
			}
		}
		if err != nil && len(c.pending) == 0 {
			return nil, err
		}
	}

	frame := c.pending[0]
	c.pending = c.pending[1:]
	return wire.Decode(frame)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
