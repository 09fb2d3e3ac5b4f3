package log

import (
	"fmt"
	"strings"
	"time"
)

// Event is one protocol observation on one connection. Exactly one of the
// payload pointers is set. Keys are small integers to keep .plog files
// compact; they must never be renumbered.
type Event struct {
	Timestamp    time.Time `cbor:"1,keyasint"`
	ConnectionID string    `cbor:"2,keyasint"` // UUID assigned at accept/dial
	Direction    Direction `cbor:"3,keyasint"`
	Layer        Layer     `cbor:"4,keyasint"`
	Category     Category  `cbor:"5,keyasint"`
	RemoteAddr   string    `cbor:"6,keyasint,omitempty"`

	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"`
}

// Direction is the flow of a frame or message relative to this process.
type Direction uint8

const (
	DirectionIn Direction = iota
	DirectionOut
)

// Layer is where an event was captured.
type Layer uint8

const (
	// LayerTransport sees CRLF frames.
	LayerTransport Layer = iota
	// LayerWire sees decoded JSON messages.
	LayerWire
	// LayerSession sees the per-connection state machine.
	LayerSession
)

// Category classifies the payload of an event.
type Category uint8

const (
	CategoryMessage Category = iota
	CategoryState
	CategoryError
)

var (
	directionNames = []string{"IN", "OUT"}
	layerNames     = []string{"TRANSPORT", "WIRE", "SESSION"}
	categoryNames  = []string{"MESSAGE", "STATE", "ERROR"}
	entityNames    = []string{"CONNECTION", "SESSION"}
)

func (d Direction) String() string   { return enumName(directionNames, int(d)) }
func (l Layer) String() string       { return enumName(layerNames, int(l)) }
func (c Category) String() string    { return enumName(categoryNames, int(c)) }
func (s StateEntity) String() string { return enumName(entityNames, int(s)) }

// MarshalText renders enums by name in JSON exports. The CBOR file format
// keeps the integer values.
func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }
func (l Layer) MarshalText() ([]byte, error)     { return []byte(l.String()), nil }
func (c Category) MarshalText() ([]byte, error)  { return []byte(c.String()), nil }

// ParseDirection parses "in" or "out", ignoring case.
func ParseDirection(s string) (Direction, error) {
	i, err := parseEnum("direction", directionNames, s)
	return Direction(i), err
}

// ParseLayer parses "transport", "wire" or "session", ignoring case.
func ParseLayer(s string) (Layer, error) {
	i, err := parseEnum("layer", layerNames, s)
	return Layer(i), err
}

// ParseCategory parses "message", "state" or "error", ignoring case.
func ParseCategory(s string) (Category, error) {
	i, err := parseEnum("category", categoryNames, s)
	return Category(i), err
}

func enumName(names []string, i int) string {
	if i < 0 || i >= len(names) {
		return "UNKNOWN"
	}
	return names[i]
}

func parseEnum(kind string, names []string, s string) (int, error) {
	for i, name := range names {
		if strings.EqualFold(name, s) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("invalid %s %q (want one of %s)", kind, s, strings.ToLower(strings.Join(names, ", ")))
}

// FrameEvent is a CRLF-delimited frame as it crossed the socket.
type FrameEvent struct {
	Size      int    `cbor:"1,keyasint"` // including the CRLF
	Data      []byte `cbor:"2,keyasint,omitempty"`
	Truncated bool   `cbor:"3,keyasint,omitempty"` // Data holds a prefix only
}

// MessageEvent is a decoded upload message. Public keys and chunk
// contents are not copied into it.
type MessageEvent struct {
	// Type is the upper-cased type tag (OPEN, DATA, ...).
	Type string `cbor:"1,keyasint"`

	// FileName is the sanitized name of an OPEN.
	FileName string `cbor:"2,keyasint,omitempty"`

	// PayloadSize is the decoded size of a DATA chunk.
	PayloadSize int `cbor:"3,keyasint,omitempty"`

	// Suite is the cipher/mode/digest of a CIPHER_CHOSEN.
	Suite string `cbor:"4,keyasint,omitempty"`
}

// StateChangeEvent records a connection or session transition.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity is what changed state.
type StateEntity uint8

const (
	StateEntityConnection StateEntity = iota
	StateEntitySession
)

// ErrorEventData records a failure that ended or affected a connection.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Kind is the session error kind (PARSE, STATE, CRYPTO, ...).
	Kind string `cbor:"3,keyasint,omitempty"`

	// Context names the operation that failed.
	Context string `cbor:"4,keyasint,omitempty"`
}
