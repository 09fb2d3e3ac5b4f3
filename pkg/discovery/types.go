package discovery

import (
	"errors"
	"net"
	"strconv"
	"time"
)

// Service identification.
const (
	// ServiceType is the DNS-SD service type of upload servers.
	ServiceType = "_secupload._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the default upload port.
	DefaultPort = 5000

	// ProtocolVersion is advertised in the TXT record.
	ProtocolVersion = "1"
)

// Timing and limits.
const (
	// BrowseTimeout is the default timeout for mDNS browsing.
	BrowseTimeout = 10 * time.Second

	// DefaultTTL is the default DNS record TTL.
	DefaultTTL = 120 * time.Second

	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63
)

// TXT record keys.
const (
	TXTKeyVersion = "ver"
	TXTKeyGroup   = "grp"
	TXTKeyCiphers = "ciphers"
)

// Discovery errors.
var (
	ErrNotFound            = errors.New("service not found")
	ErrMissingRequired     = errors.New("missing required TXT field")
	ErrInvalidTXTRecord    = errors.New("invalid TXT record")
	ErrInstanceNameTooLong = errors.New("instance name too long")
	ErrInvalidInstanceName = errors.New("invalid instance name")
)

// ServiceInfo is what a server advertises.
type ServiceInfo struct {
	// InstanceName is the DNS-SD instance label.
	InstanceName string

	// Port is the TCP port the server listens on.
	Port uint16

	// Version is the protocol version.
	Version string

	// Group is the key-exchange group mode ("generate" or "modp2").
	Group string

	// Ciphers lists the accepted ciphers, most preferred first.
	Ciphers []string
}

// UploadService is a discovered upload server.
type UploadService struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string

	Version string
	Group   string
	Ciphers []string
}

// Address returns a dialable host:port, preferring IPv4 addresses.
func (s *UploadService) Address() (string, error) {
	port := strconv.Itoa(int(s.Port))

	var fallback string
	for _, addr := range s.Addresses {
		ip := net.ParseIP(addr)
		if ip == nil {
			continue
		}
		if ip.To4() != nil {
			return net.JoinHostPort(addr, port), nil
		}
		if fallback == "" {
			fallback = addr
		}
	}
	if fallback != "" {
		return net.JoinHostPort(fallback, port), nil
	}
	if s.Host != "" {
		return net.JoinHostPort(s.Host, port), nil
	}
	return "", ErrNotFound
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL.
	TTL time.Duration
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{TTL: DefaultTTL}
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout bounds FindFirst when the context has no deadline.
	BrowseTimeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{BrowseTimeout: BrowseTimeout}
}
