package transport

import (
	"context"
	"net"
)

// Conn is the connection surface a protocol handler needs: send a frame,
// close the connection, identify the peer. Implemented by ServerConn.
type Conn interface {
	// RemoteAddr returns the remote network address of the peer.
	RemoteAddr() net.Addr

	// ConnID returns the unique connection identifier.
	ConnID() string

	// Send writes one frame; the delimiter is appended.
	Send(data []byte) error

	// Close closes the connection.
	Close() error
}

// TransportServer represents an upload transport server.
// Implemented by Server.
type TransportServer interface {
	// Start begins accepting connections.
	Start(ctx context.Context) error

	// Stop gracefully stops the server.
	Stop() error

	// Addr returns the server's listen address.
	Addr() net.Addr

	// ConnectionCount returns the number of active connections.
	ConnectionCount() int
}

// FrameFeeder splits a byte stream into frames.
// Implemented by LineReader.
type FrameFeeder interface {
	// Feed appends data and returns every complete frame.
	Feed(data []byte) ([][]byte, error)
}

// Compile-time interface satisfaction checks.
var (
	_ Conn            = (*ServerConn)(nil)
	_ TransportServer = (*Server)(nil)
	_ FrameFeeder     = (*LineReader)(nil)
)
