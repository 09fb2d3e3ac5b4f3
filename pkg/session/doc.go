// Package session implements the per-connection upload protocol.
//
// A Session is created for every accepted connection and owned by that
// connection's goroutine. On connect it announces the key-exchange
// parameters and its public value. Inbound bytes are split into frames,
// each frame is decoded as one JSON message and dispatched according to the
// session state:
//
//	CONNECT --OPEN--> OPEN --DATA--> DATA --DATA--> DATA
//	   |                |              |
//	   +------------CLOSE or any error-+----> CLOSE
//
// DH_KEY_EXCHANGE and NEGOTIATE are only legal in CONNECT and do not change
// the state. Every error is terminal: the client receives one generic ERROR
// message and the connection is closed. An oversized frame closes the
// connection without an ERROR message.
package session
