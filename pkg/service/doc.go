// Package service assembles a complete upload server from its parts.
//
// Config is loaded once at startup (YAML file, then command-line overrides)
// and validated. Server then wires:
//
//   - the TCP transport with its acceptor workers and idle timeout
//   - one protocol session per connection, sharing an immutable session
//     configuration (parameter source, storage sink, manifest)
//   - optional protocol event capture to a CBOR file
//   - optional mDNS advertisement of the listening port
package service
