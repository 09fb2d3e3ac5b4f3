package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/TomasCostaK/secure-comms/pkg/handshake"
	"github.com/TomasCostaK/secure-comms/pkg/log"
	"github.com/TomasCostaK/secure-comms/pkg/negotiation"
	"github.com/TomasCostaK/secure-comms/pkg/storage"
	"github.com/TomasCostaK/secure-comms/pkg/transport"
	"github.com/TomasCostaK/secure-comms/pkg/wire"
)

// Config is shared by every session of a server. It must not be modified
// after the first session is created.
type Config struct {
	// Parameters supplies the key-exchange group for each connection.
	// Defaults to a freshly generated 1024-bit safe-prime group.
	Parameters handshake.ParameterSource

	// Sink opens upload files. Defaults to a sink rooted at storage.DefaultRoot.
	Sink *storage.Sink

	// Manifest records cleanly closed uploads (optional).
	Manifest *storage.ManifestStore

	// MaxBufferSize is the inbound buffer ceiling in bytes.
	MaxBufferSize int

	// Random is the entropy source for key generation (crypto/rand when nil).
	Random io.Reader

	// Logger for operational output (optional).
	Logger *slog.Logger

	// ProtocolLogger for protocol event capture (optional).
	ProtocolLogger log.Logger
}

// Session is the protocol state of one connection. All methods are called
// from the connection's goroutine.
type Session struct {
	ctx    context.Context
	config Config
	conn   transport.Conn
	logger *slog.Logger

	reader *transport.LineReader
	engine *handshake.Engine

	state      State
	file       *storage.File
	suite      negotiation.Suite
	negotiated bool
}

var _ transport.Handler = (*Session)(nil)

// New creates the session for conn. ctx bounds parameter generation.
func New(ctx context.Context, conn transport.Conn, config Config) *Session {
	if config.Parameters == nil {
		config.Parameters = handshake.GeneratedParameters(config.Random, handshake.DefaultModulusBits, handshake.DefaultGenerator)
	}
	if config.Sink == nil {
		config.Sink = storage.NewSink(storage.Config{})
	}
	if config.MaxBufferSize <= 0 {
		config.MaxBufferSize = transport.DefaultMaxBufferSize
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	reader := transport.NewLineReaderWithMaxSize(config.MaxBufferSize)
	if config.ProtocolLogger != nil {
		reader.SetLogger(config.ProtocolLogger, conn.ConnID())
	}

	return &Session{
		ctx:    ctx,
		config: config,
		conn:   conn,
		logger: logger.With("conn_id", conn.ConnID(), "remote", remoteString(conn)),
		reader: reader,
		engine: handshake.NewEngine(config.Random),
		state:  StateConnect,
	}
}

// NewFactory returns a transport handler factory creating one session per
// accepted connection.
func NewFactory(ctx context.Context, config Config) transport.HandlerFactory {
	return func(conn *transport.ServerConn) transport.Handler {
		return New(ctx, conn, config)
	}
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// Key returns the derived key material, or nil before the key exchange.
func (s *Session) Key() []byte {
	return s.engine.Key()
}

// Suite returns the negotiated suite and whether negotiation succeeded.
func (s *Session) Suite() (negotiation.Suite, bool) {
	return s.suite, s.negotiated && s.suite.Complete()
}

// OnConnect announces the domain parameters and the server public value.
func (s *Session) OnConnect() error {
	s.logger.Info("connection opened")
	s.logStateChange("", StateConnect, "")

	if err := s.startHandshake(); err != nil {
		s.fail(err)
		return err
	}
	return nil
}

func (s *Session) startHandshake() error {
	params, err := s.config.Parameters(s.ctx)
	if err != nil {
		return Wrap(KindCrypto, "generate parameters", err)
	}
	if err := s.send(wire.NewDHInit(params.P, params.G), log.MessageEvent{Type: string(wire.TypeDHInit)}); err != nil {
		return err
	}

	pemText, err := s.engine.Start(params)
	if err != nil {
		return Wrap(KindCrypto, "generate key", err)
	}
	return s.send(wire.NewDHKeyExchange(pemText), log.MessageEvent{Type: string(wire.TypeDHKeyExchange)})
}

// OnData feeds a chunk of inbound bytes and processes every complete frame.
func (s *Session) OnData(chunk []byte) {
	if s.state == StateClose {
		return
	}

	frames, feedErr := s.reader.Feed(chunk)
	for _, frame := range frames {
		if err := s.HandleFrame(frame); err != nil {
			s.fail(err)
			return
		}
		if s.state == StateClose {
			return
		}
	}

	if feedErr != nil {
		s.fail(Wrap(KindFraming, "read", feedErr))
	}
}

// OnClose releases the session after the connection has gone away.
func (s *Session) OnClose(err error) {
	if s.state != StateClose {
		reason := "connection lost"
		if err != nil {
			reason = err.Error()
		}
		s.closeFile(false)
		s.setState(StateClose, reason)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Info("connection closed", "reason", err)
	} else {
		s.logger.Info("connection closed")
	}
}

// HandleFrame decodes and dispatches one frame.
func (s *Session) HandleFrame(frame []byte) error {
	env, err := wire.Decode(frame)
	if err != nil {
		return Wrap(KindParse, "decode", err)
	}
	s.logger.Debug("message received", "type", env.Type)

	switch env.Type {
	case wire.TypeDHKeyExchange:
		return s.handleKeyExchange(env)
	case wire.TypeOpen:
		return s.handleOpen(env)
	case wire.TypeData:
		return s.handleData(env)
	case wire.TypeNegotiate:
		return s.handleNegotiate(env)
	case wire.TypeClose:
		return s.handleClose()
	default:
		s.logMessageIn(log.MessageEvent{Type: string(env.Type)})
		return Wrap(KindParse, "dispatch", fmt.Errorf("%w: %s", ErrUnknownType, env.Type))
	}
}

func (s *Session) handleKeyExchange(env *wire.Envelope) error {
	s.logMessageIn(log.MessageEvent{Type: string(env.Type)})

	if s.state != StateConnect || s.engine.Completed() {
		return s.unexpected(env.Type)
	}

	var msg wire.DHKeyExchange
	if err := env.Bind(&msg); err != nil {
		return Wrap(KindParse, "key exchange", err)
	}
	if msg.Data == nil || msg.Data.PubKey == nil {
		return Wrap(KindParse, "key exchange", fmt.Errorf("%w: data.pub_key", ErrMissingField))
	}

	if _, err := s.engine.Complete(*msg.Data.PubKey); err != nil {
		return Wrap(KindCrypto, "key exchange", err)
	}
	s.logger.Debug("key exchange complete")
	return nil
}

func (s *Session) handleOpen(env *wire.Envelope) error {
	var msg wire.Open
	if err := env.Bind(&msg); err != nil {
		s.logMessageIn(log.MessageEvent{Type: string(env.Type)})
		return Wrap(KindParse, "open", err)
	}

	var requested string
	if msg.FileName != nil {
		requested = *msg.FileName
	}
	s.logMessageIn(log.MessageEvent{Type: string(env.Type), FileName: requested})

	if s.state != StateConnect {
		return s.unexpected(env.Type)
	}
	if msg.FileName == nil {
		return Wrap(KindParse, "open", fmt.Errorf("%w: file_name", ErrMissingField))
	}

	file, err := s.config.Sink.Open(requested)
	if err != nil {
		return Wrap(KindIO, "open", err)
	}
	s.file = file
	s.logger.Info("file opened", "name", file.Name(), "path", file.Path())

	if err := s.send(wire.NewOK(), log.MessageEvent{Type: string(wire.TypeOK), FileName: file.Name()}); err != nil {
		return err
	}
	s.setState(StateOpen, "")
	return nil
}

func (s *Session) handleData(env *wire.Envelope) error {
	if s.state != StateOpen && s.state != StateData {
		s.logMessageIn(log.MessageEvent{Type: string(env.Type)})
		return s.unexpected(env.Type)
	}

	var msg wire.Data
	if err := env.Bind(&msg); err != nil {
		s.logMessageIn(log.MessageEvent{Type: string(env.Type)})
		return Wrap(KindParse, "data", err)
	}
	if msg.Data == nil {
		s.logMessageIn(log.MessageEvent{Type: string(env.Type)})
		return Wrap(KindParse, "data", fmt.Errorf("%w: data", ErrMissingField))
	}

	chunk, err := storage.DecodeChunk(*msg.Data)
	s.logMessageIn(log.MessageEvent{Type: string(env.Type), PayloadSize: len(chunk)})
	if err != nil {
		return Wrap(KindDecode, "data", err)
	}

	if err := s.file.Append(chunk); err != nil {
		return Wrap(KindIO, "data", err)
	}
	if s.state == StateOpen {
		s.setState(StateData, "")
	}
	return nil
}

func (s *Session) handleNegotiate(env *wire.Envelope) error {
	s.logMessageIn(log.MessageEvent{Type: string(env.Type)})

	if s.state != StateConnect || s.negotiated {
		return s.unexpected(env.Type)
	}

	var msg wire.Negotiate
	if err := env.Bind(&msg); err != nil {
		return Wrap(KindParse, "negotiate", err)
	}

	suite, chooseErr := negotiation.Choose(negotiation.Offer{
		Ciphers: msg.Ciphers,
		Modes:   msg.Modes,
		Digests: msg.Digests,
	})
	// An incomplete offer gets no CIPHER_CHOSEN at all.
	if errors.Is(chooseErr, negotiation.ErrMissingList) {
		return Wrap(KindNegotiation, "negotiate", chooseErr)
	}
	s.negotiated = true
	s.suite = suite

	reply := &wire.CipherChosen{
		Type:   wire.TypeCipherChosen,
		Cipher: optional(suite.Cipher),
		Mode:   optional(suite.Mode),
		Digest: optional(suite.Digest),
	}
	if err := s.send(reply, log.MessageEvent{Type: string(wire.TypeCipherChosen), Suite: suite.String()}); err != nil {
		return err
	}

	if chooseErr != nil {
		return Wrap(KindNegotiation, "negotiate", chooseErr)
	}
	s.logger.Info("suite negotiated", "suite", suite.String())
	return nil
}

func (s *Session) handleClose() error {
	s.logMessageIn(log.MessageEvent{Type: string(wire.TypeClose)})

	// Writes are queued; a failed final chunk only surfaces on close.
	if err := s.closeFile(true); err != nil {
		return Wrap(KindIO, "close", err)
	}
	s.setState(StateClose, "client closed")
	s.conn.Close()
	return nil
}

// fail reports err to the peer and tears the session down.
func (s *Session) fail(err error) {
	kind := KindOf(err)
	s.logger.Warn("session failed", "kind", kind.String(), "error", err)
	s.logError(kind, err)

	if kind != KindFraming {
		// Best effort; the connection is closed regardless.
		_ = s.send(wire.NewError(), log.MessageEvent{Type: string(wire.TypeError)})
	}

	s.closeFile(false)
	s.setState(StateClose, err.Error())
	s.conn.Close()
}

// closeFile closes the open file, if any. When record is set and the file
// closed cleanly, the upload is added to the manifest.
func (s *Session) closeFile(record bool) error {
	if s.file == nil {
		return nil
	}
	file := s.file
	s.file = nil

	if err := file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", file.Name(), err)
	}
	s.logger.Info("file closed", "name", file.Name(), "bytes", file.Written())

	if !record || s.config.Manifest == nil {
		return nil
	}
	rec := storage.UploadRecord{
		Name:         file.Name(),
		Size:         file.Written(),
		ConnectionID: s.conn.ConnID(),
		RemoteAddr:   remoteString(s.conn),
	}
	if suite, ok := s.Suite(); ok {
		rec.Suite = suite.String()
	}
	if err := s.config.Manifest.Record(rec); err != nil {
		return fmt.Errorf("record %s: %w", file.Name(), err)
	}
	return nil
}

func (s *Session) unexpected(typ wire.MessageType) error {
	return Wrap(KindState, "dispatch", fmt.Errorf("%w: %s in state %s", ErrUnexpectedMessage, typ, s.state))
}

// send encodes and writes one message.
func (s *Session) send(msg any, event log.MessageEvent) error {
	data, err := wire.Encode(msg)
	if err != nil {
		return Wrap(KindParse, "encode", err)
	}
	if err := s.conn.Send(data); err != nil {
		return Wrap(KindIO, "send", err)
	}
	s.logMessage(log.DirectionOut, event)
	return nil
}

func (s *Session) setState(next State, reason string) {
	if s.state == next {
		return
	}
	prev := s.state
	s.state = next
	s.logger.Debug("state changed", "from", prev, "to", next)
	s.logStateChange(prev.String(), next, reason)
}

func (s *Session) logMessageIn(event log.MessageEvent) {
	s.logMessage(log.DirectionIn, event)
}

func (s *Session) logMessage(dir log.Direction, event log.MessageEvent) {
	if s.config.ProtocolLogger == nil {
		return
	}
	s.config.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.conn.ConnID(),
		Direction:    dir,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		RemoteAddr:   remoteString(s.conn),
		Message:      &event,
	})
}

func (s *Session) logStateChange(prev string, next State, reason string) {
	if s.config.ProtocolLogger == nil {
		return
	}
	s.config.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.conn.ConnID(),
		Layer:        log.LayerSession,
		Category:     log.CategoryState,
		RemoteAddr:   remoteString(s.conn),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			OldState: prev,
			NewState: next.String(),
			Reason:   reason,
		},
	})
}

func (s *Session) logError(kind ErrorKind, err error) {
	if s.config.ProtocolLogger == nil {
		return
	}
	var op string
	var se *Error
	if errors.As(err, &se) {
		op = se.Op
	}
	s.config.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.conn.ConnID(),
		Layer:        log.LayerSession,
		Category:     log.CategoryError,
		RemoteAddr:   remoteString(s.conn),
		Error: &log.ErrorEventData{
			Layer:   log.LayerSession,
			Message: err.Error(),
			Kind:    kind.String(),
			Context: op,
		},
	})
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func remoteString(conn transport.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
