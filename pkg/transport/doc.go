// Package transport provides the byte-stream side of the upload protocol.
//
// The transport layer handles:
//   - Accepting TCP connections on a shared listener with a small pool of
//     acceptor goroutines
//   - Delimiter-based message framing (each message ends with "\r\n")
//   - Idle timeouts and forced disconnects
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      JSON Messages             │
//	├────────────────────────────────┤
//	│   CRLF-Delimited Framing       │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// The transport never interprets frame contents. Each accepted connection is
// handed to a Handler created by the server's HandlerFactory; the handler
// receives raw inbound chunks in arrival order and decides when the
// connection must be closed.
package transport
