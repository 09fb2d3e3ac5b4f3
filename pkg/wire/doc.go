// Package wire defines the JSON messages of the upload protocol.
//
// Every message is a JSON object with a mandatory "type" field. The type is
// matched case-insensitively; Decode normalizes it to upper case. Frames on
// the wire are the JSON text followed by "\r\n" (see package transport).
//
// # Message Flow
//
//	server                                client
//	  │ ── DH_INIT {data:{p,g}} ──────────▶ │
//	  │ ── DH_KEY_EXCHANGE {pub_key} ─────▶ │
//	  │ ◀────────── DH_KEY_EXCHANGE ─────── │
//	  │ ◀────────── NEGOTIATE ───────────── │
//	  │ ── CIPHER_CHOSEN ─────────────────▶ │
//	  │ ◀────────── OPEN {file_name} ────── │
//	  │ ── OK ────────────────────────────▶ │
//	  │ ◀────────── DATA {data} ... ─────── │
//	  │ ◀────────── CLOSE ───────────────── │
//
// Any fatal condition produces a single ERROR message before the server
// closes the connection.
package wire
