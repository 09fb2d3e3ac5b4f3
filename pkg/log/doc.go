// Package log captures protocol events from upload connections.
//
// It is separate from operational logging (slog). Every frame, decoded
// message, state transition and protocol error of a connection is recorded
// as an Event keyed by the connection's UUID, so a single upload can be
// replayed after the fact with the upload-log command.
//
// Sinks are combined with Tee:
//
//	fl, _ := log.NewFileLogger("/var/log/upload/server.plog")
//	cfg.ProtocolLogger = log.Tee(fl, log.NewSlogAdapter(slog.Default()))
//
// # Layers
//
//   - TRANSPORT: CRLF frames as read or written (FrameEvent)
//   - WIRE: decoded messages (MessageEvent)
//   - SESSION: connection and upload state (StateChangeEvent)
//
// Errors at any layer carry an ErrorEventData payload.
//
// # File format
//
// A .plog file is the CBOR self-described tag followed by a sequence of
// CBOR maps with integer keys, one per event. Files are append-only;
// several server runs may share one file.
package log
