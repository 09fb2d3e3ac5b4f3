package service

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/TomasCostaK/secure-comms/pkg/discovery"
	"github.com/TomasCostaK/secure-comms/pkg/log"
	"github.com/TomasCostaK/secure-comms/pkg/negotiation"
	"github.com/TomasCostaK/secure-comms/pkg/session"
	"github.com/TomasCostaK/secure-comms/pkg/storage"
	"github.com/TomasCostaK/secure-comms/pkg/transport"
)

// Server is a running upload service.
type Server struct {
	config Config
	logger *slog.Logger

	mu         sync.Mutex
	state      ServiceState
	cancel     context.CancelFunc
	transport  *transport.Server
	fileLogger *log.FileLogger
	advertiser *discovery.MDNSAdvertiser
}

// NewServer validates config and creates a server. Paths in config are
// made absolute here, once.
func NewServer(config Config, logger *slog.Logger) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := config.Resolve(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{config: config, logger: logger}, nil
}

// Config returns the resolved configuration.
func (s *Server) Config() Config {
	return s.config
}

// Start begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning {
		return ErrAlreadyStarted
	}

	protocolLogger, err := s.openProtocolLog()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)

	var manifest *storage.ManifestStore
	if s.config.Storage.Manifest != "" {
		manifest = storage.NewManifestStore(s.config.Storage.Manifest)
	}

	sessions := session.Config{
		Parameters: s.config.ParameterSource(),
		Sink: storage.NewSink(storage.Config{
			Root:       s.config.StorageDir,
			Sync:       s.config.Storage.Sync,
			QueueDepth: s.config.Storage.QueueDepth,
		}),
		Manifest:       manifest,
		MaxBufferSize:  s.config.MaxBufferSize,
		Logger:         s.logger,
		ProtocolLogger: protocolLogger,
	}

	server, err := transport.NewServer(transport.ServerConfig{
		Address:        s.config.Address(),
		Workers:        s.config.Workers,
		IdleTimeout:    s.config.IdleTimeout,
		NewHandler:     session.NewFactory(ctx, sessions),
		Logger:         s.logger,
		ProtocolLogger: protocolLogger,
		OnError: func(err error) {
			s.logger.Warn("transport error", "error", err)
		},
	})
	if err != nil {
		cancel()
		s.closeProtocolLog()
		return err
	}
	if err := server.Start(ctx); err != nil {
		cancel()
		s.closeProtocolLog()
		return err
	}

	s.transport = server
	s.cancel = cancel
	s.state = StateRunning

	s.logger.Info("upload service started",
		"addr", server.Addr().String(),
		"storage", s.config.StorageDir,
		"dh_group", s.config.DH.Group)

	if s.config.Discovery.Enabled {
		s.advertise(ctx)
	}
	return nil
}

// Stop closes all connections and releases resources.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return ErrNotStarted
	}

	if s.advertiser != nil {
		s.advertiser.Stop()
		s.advertiser = nil
	}

	// Cancel first so sessions still generating parameters give up.
	s.cancel()
	err := s.transport.Stop()
	s.closeProtocolLog()

	s.state = StateStopped
	s.logger.Info("upload service stopped")
	return err
}

// State returns the service state.
func (s *Server) State() ServiceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Addr returns the listen address, or nil when not running.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport == nil {
		return nil
	}
	return s.transport.Addr()
}

// ConnectionCount returns the number of open connections.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport == nil {
		return 0
	}
	return s.transport.ConnectionCount()
}

// openProtocolLog builds the protocol logger. At debug level events are
// mirrored to the operational log as well.
func (s *Server) openProtocolLog() (log.Logger, error) {
	var mirror log.Logger
	if s.logger.Enabled(context.Background(), slog.LevelDebug) {
		mirror = log.NewSlogAdapter(s.logger)
	}
	if s.config.ProtocolLog == "" {
		return log.Tee(mirror), nil
	}

	fl, err := log.NewFileLogger(s.config.ProtocolLog)
	if err != nil {
		return nil, fmt.Errorf("failed to open protocol log: %w", err)
	}
	s.fileLogger = fl
	return log.Tee(fl, mirror), nil
}

func (s *Server) closeProtocolLog() {
	if s.fileLogger == nil {
		return
	}
	events := s.fileLogger.Events()
	if err := s.fileLogger.Close(); err != nil {
		s.logger.Warn("failed to close protocol log", "error", err)
	} else {
		s.logger.Debug("protocol log closed", "path", s.config.ProtocolLog, "events", events)
	}
	s.fileLogger = nil
}

// advertise publishes the service over mDNS. Failure is logged, not fatal.
func (s *Server) advertise(ctx context.Context) {
	instance := s.config.Discovery.Instance
	if instance == "" {
		host, _ := os.Hostname()
		instance = "upload-" + host
		if len(instance) > discovery.MaxInstanceNameLen {
			instance = instance[:discovery.MaxInstanceNameLen]
		}
	}

	port := s.config.Port
	if tcp, ok := s.transport.Addr().(*net.TCPAddr); ok {
		port = tcp.Port
	}

	config := discovery.DefaultAdvertiserConfig()
	config.Interface = s.config.Discovery.Interface
	advertiser := discovery.NewMDNSAdvertiser(config)

	err := advertiser.Advertise(ctx, &discovery.ServiceInfo{
		InstanceName: instance,
		Port:         uint16(port),
		Group:        s.config.DH.Group,
		Ciphers:      negotiation.CipherPreference,
	})
	if err != nil {
		s.logger.Warn("mDNS advertisement failed", "error", err)
		return
	}
	s.advertiser = advertiser
	s.logger.Info("advertising via mDNS", "instance", instance, "service", discovery.ServiceType)
}
