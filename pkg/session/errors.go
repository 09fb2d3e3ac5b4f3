package session

import (
	"errors"
	"fmt"
)

// ErrorKind classifies session errors.
type ErrorKind uint8

const (
	// KindFraming indicates the inbound buffer exceeded its ceiling.
	KindFraming ErrorKind = iota + 1

	// KindParse indicates a frame is not a usable message.
	KindParse

	// KindState indicates a message that is not legal in the current state.
	KindState

	// KindDecode indicates a DATA payload that is not valid base64.
	KindDecode

	// KindIO indicates a storage failure.
	KindIO

	// KindCrypto indicates a key-exchange failure.
	KindCrypto

	// KindNegotiation indicates no acceptable algorithm suite.
	KindNegotiation
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindFraming:
		return "FRAMING"
	case KindParse:
		return "PARSE"
	case KindState:
		return "STATE"
	case KindDecode:
		return "DECODE"
	case KindIO:
		return "IO"
	case KindCrypto:
		return "CRYPTO"
	case KindNegotiation:
		return "NEGOTIATION"
	default:
		return fmt.Sprintf("KIND(%d)", k)
	}
}

// Session errors.
var (
	// ErrUnknownType indicates a message type the server does not handle.
	ErrUnknownType = errors.New("unknown message type")

	// ErrUnexpectedMessage indicates a message not allowed in the current state.
	ErrUnexpectedMessage = errors.New("unexpected message")

	// ErrMissingField indicates a required message field is absent.
	ErrMissingField = errors.New("missing field")
)

// Error is a classified session error.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap classifies err.
func Wrap(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsKind reports whether err is a session error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or 0 if it is not a session error.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}
