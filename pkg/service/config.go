package service

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TomasCostaK/secure-comms/pkg/handshake"
	"github.com/TomasCostaK/secure-comms/pkg/storage"
	"github.com/TomasCostaK/secure-comms/pkg/transport"
)

// Group modes for the key exchange.
const (
	// GroupGenerate generates a fresh safe-prime group per connection.
	GroupGenerate = "generate"

	// GroupMODP2 uses the fixed RFC 2409 1024-bit group.
	GroupMODP2 = "modp2"
)

// DefaultIdleTimeout closes connections that stay silent this long.
const DefaultIdleTimeout = 5 * time.Minute

// Config is the server configuration. It is built once at startup and not
// modified afterwards.
type Config struct {
	// Port is the TCP port to listen on.
	Port int `yaml:"port"`

	// ListenAddress is the host part of the listen address (empty for all).
	ListenAddress string `yaml:"listen_address"`

	// StorageDir is where uploaded files are written.
	StorageDir string `yaml:"storage_dir"`

	// Workers is the number of acceptor goroutines.
	Workers int `yaml:"workers"`

	// IdleTimeout closes silent connections. Zero disables it.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// MaxBufferSize is the per-connection inbound buffer ceiling in bytes.
	MaxBufferSize int `yaml:"max_buffer_size"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level"`

	// ProtocolLog is the path of a CBOR protocol event file (optional).
	ProtocolLog string `yaml:"protocol_log"`

	DH        DHConfig        `yaml:"dh"`
	Storage   StorageConfig   `yaml:"storage"`
	Discovery DiscoveryConfig `yaml:"discovery"`
}

// DHConfig selects the key-exchange group.
type DHConfig struct {
	// Group is "generate" or "modp2".
	Group string `yaml:"group"`

	// ModulusBits is the size of generated moduli.
	ModulusBits int `yaml:"modulus_bits"`

	// Generator is the group generator for generated groups.
	Generator int `yaml:"generator"`
}

// StorageConfig tunes file writing.
type StorageConfig struct {
	// Sync fsyncs every file before it is closed.
	Sync bool `yaml:"sync"`

	// QueueDepth bounds the chunks buffered per open file.
	QueueDepth int `yaml:"queue_depth"`

	// Manifest is the path of the upload manifest (optional). It must not
	// be inside the storage directory.
	Manifest string `yaml:"manifest"`
}

// DiscoveryConfig controls mDNS advertisement.
type DiscoveryConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Instance  string `yaml:"instance"`
	Interface string `yaml:"interface"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:          transport.DefaultPort,
		StorageDir:    storage.DefaultRoot,
		Workers:       transport.DefaultWorkers,
		IdleTimeout:   DefaultIdleTimeout,
		MaxBufferSize: transport.DefaultMaxBufferSize,
		LogLevel:      "info",
		DH: DHConfig{
			Group:       GroupGenerate,
			ModulusBits: handshake.DefaultModulusBits,
			Generator:   handshake.DefaultGenerator,
		},
		Storage: StorageConfig{
			QueueDepth: storage.DefaultQueueDepth,
		},
	}
}

// LoadConfig reads a YAML file over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return config, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", ErrInvalidConfig, c.Port)
	}
	if c.Port < 1024 && os.Geteuid() != 0 {
		return fmt.Errorf("%w: ports below 1024 require root", ErrInvalidConfig)
	}
	if c.StorageDir == "" {
		return fmt.Errorf("%w: storage_dir is required", ErrInvalidConfig)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("%w: idle_timeout must not be negative", ErrInvalidConfig)
	}
	if c.MaxBufferSize <= 0 {
		return fmt.Errorf("%w: max_buffer_size must be positive", ErrInvalidConfig)
	}
	if _, err := c.SlogLevel(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	switch c.DH.Group {
	case GroupMODP2:
	case GroupGenerate:
		if c.DH.ModulusBits < handshake.MinModulusBits {
			return fmt.Errorf("%w: dh.modulus_bits must be at least %d", ErrInvalidConfig, handshake.MinModulusBits)
		}
		if c.DH.Generator < 2 {
			return fmt.Errorf("%w: dh.generator must be at least 2", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown dh.group %q", ErrInvalidConfig, c.DH.Group)
	}

	// An upload with the same name would overwrite these files.
	if c.Storage.Manifest != "" && isWithin(c.StorageDir, c.Storage.Manifest) {
		return fmt.Errorf("%w: storage.manifest must be outside storage_dir", ErrInvalidConfig)
	}
	if c.ProtocolLog != "" && isWithin(c.StorageDir, c.ProtocolLog) {
		return fmt.Errorf("%w: protocol_log must be outside storage_dir", ErrInvalidConfig)
	}
	return nil
}

// Address returns the listen address.
func (c *Config) Address() string {
	return net.JoinHostPort(c.ListenAddress, strconv.Itoa(c.Port))
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return level, fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return level, nil
}

// ParameterSource returns the key-exchange parameter source for DH.
func (c *Config) ParameterSource() handshake.ParameterSource {
	if c.DH.Group == GroupMODP2 {
		return handshake.FixedParameters(handshake.MODPGroup2())
	}
	return handshake.GeneratedParameters(nil, c.DH.ModulusBits, c.DH.Generator)
}

// Resolve makes the storage, manifest and protocol log paths absolute.
func (c *Config) Resolve() error {
	abs, err := filepath.Abs(c.StorageDir)
	if err != nil {
		return fmt.Errorf("failed to resolve storage_dir: %w", err)
	}
	c.StorageDir = abs

	if c.Storage.Manifest != "" {
		abs, err := filepath.Abs(c.Storage.Manifest)
		if err != nil {
			return fmt.Errorf("failed to resolve storage.manifest: %w", err)
		}
		c.Storage.Manifest = abs
	}
	if c.ProtocolLog != "" {
		abs, err := filepath.Abs(c.ProtocolLog)
		if err != nil {
			return fmt.Errorf("failed to resolve protocol_log: %w", err)
		}
		c.ProtocolLog = abs
	}
	return nil
}

func isWithin(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
