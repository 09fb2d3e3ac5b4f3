package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Codec errors.
var (
	// ErrInvalidJSON indicates the frame is not well-formed JSON.
	ErrInvalidJSON = errors.New("invalid JSON")

	// ErrNotObject indicates the frame is JSON but not an object.
	ErrNotObject = errors.New("message is not a JSON object")

	// ErrMissingType indicates the object has no usable "type" field.
	ErrMissingType = errors.New("message has no type")

	// ErrInvalidPayload indicates the fields do not match the message type.
	ErrInvalidPayload = errors.New("invalid message payload")
)

// Envelope is a parsed frame whose type has been read but whose payload has
// not yet been bound to a concrete message struct.
type Envelope struct {
	// Type is the upper-cased "type" field.
	Type MessageType

	raw []byte
}

// Decode parses a frame and extracts its type.
func Decode(frame []byte) (*Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, ErrNotObject
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if fields == nil {
		return nil, ErrNotObject
	}

	rawType, ok := fields["type"]
	if !ok {
		return nil, ErrMissingType
	}

	var typ string
	if err := json.Unmarshal(rawType, &typ); err != nil {
		return nil, fmt.Errorf("%w: type is not a string", ErrMissingType)
	}
	if typ == "" {
		return nil, ErrMissingType
	}

	return &Envelope{
		Type: MessageType(strings.ToUpper(typ)),
		raw:  frame,
	}, nil
}

// Bind decodes the full frame into v, which should be a pointer to one of
// the message structs of this package.
func (e *Envelope) Bind(v any) error {
	if err := json.Unmarshal(e.raw, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, e.Type, err)
	}
	return nil
}

// Raw returns the original frame bytes.
func (e *Envelope) Raw() []byte {
	return e.raw
}

// Encode serializes a message to JSON. The result never contains a raw
// CR or LF, so it can be framed directly.
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}
