package wire

import (
	"math/big"
)

// MessageType is the normalized (upper-case) value of a message's "type" field.
type MessageType string

// Message types.
const (
	// TypeDHInit carries the key-exchange domain parameters (server to client).
	TypeDHInit MessageType = "DH_INIT"

	// TypeDHKeyExchange carries a PEM-encoded public value (both directions).
	TypeDHKeyExchange MessageType = "DH_KEY_EXCHANGE"

	// TypeOpen requests a file to be opened for writing.
	TypeOpen MessageType = "OPEN"

	// TypeData carries one base64-encoded chunk of file content.
	TypeData MessageType = "DATA"

	// TypeNegotiate offers candidate ciphers, modes and digests.
	TypeNegotiate MessageType = "NEGOTIATE"

	// TypeClose ends the session.
	TypeClose MessageType = "CLOSE"

	// TypeOK acknowledges a successful OPEN.
	TypeOK MessageType = "OK"

	// TypeCipherChosen echoes the negotiated suite.
	TypeCipherChosen MessageType = "CIPHER_CHOSEN"

	// TypeError reports a fatal condition before the server disconnects.
	TypeError MessageType = "ERROR"
)

// String returns the type tag.
func (t MessageType) String() string {
	return string(t)
}

// DHInit announces the domain parameters for this connection.
type DHInit struct {
	Type MessageType `json:"type"`
	Data DHParams    `json:"data"`
}

// DHParams holds the modulus and generator as JSON integers.
type DHParams struct {
	P *big.Int `json:"p"`
	G *big.Int `json:"g"`
}

// DHKeyExchange carries a public value in PEM form.
type DHKeyExchange struct {
	Type MessageType    `json:"type"`
	Data *PublicKeyData `json:"data"`
}

// PublicKeyData wraps the PEM text of a public key.
type PublicKeyData struct {
	PubKey *string `json:"pub_key"`
}

// Open asks the server to create a file.
type Open struct {
	Type     MessageType `json:"type"`
	FileName *string     `json:"file_name"`
}

// Data carries one base64 chunk.
type Data struct {
	Type MessageType `json:"type"`
	Data *string     `json:"data"`
}

// Negotiate lists the algorithms the client supports.
// A nil list means the field was absent (or null).
type Negotiate struct {
	Type    MessageType `json:"type"`
	Ciphers []string    `json:"ciphers"`
	Modes   []string    `json:"modes"`
	Digests []string    `json:"sinteses"`
}

// CipherChosen echoes the negotiated suite. Categories that were not
// chosen are encoded as null.
type CipherChosen struct {
	Type   MessageType `json:"type"`
	Cipher *string     `json:"cipher"`
	Mode   *string     `json:"mode"`
	Digest *string     `json:"sintese"`
}

// OK acknowledges an OPEN.
type OK struct {
	Type MessageType `json:"type"`
}

// Close ends a session.
type Close struct {
	Type MessageType `json:"type"`
}

// Error reports a fatal condition.
type Error struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// GenericErrorMessage is the only text the server ever puts in an ERROR
// message; details stay in the server logs.
const GenericErrorMessage = "See server"

// NewDHInit builds a DH_INIT message.
func NewDHInit(p, g *big.Int) *DHInit {
	return &DHInit{Type: TypeDHInit, Data: DHParams{P: p, G: g}}
}

// NewDHKeyExchange builds a DH_KEY_EXCHANGE message.
func NewDHKeyExchange(pemText string) *DHKeyExchange {
	return &DHKeyExchange{Type: TypeDHKeyExchange, Data: &PublicKeyData{PubKey: &pemText}}
}

// NewOpen builds an OPEN message.
func NewOpen(fileName string) *Open {
	return &Open{Type: TypeOpen, FileName: &fileName}
}

// NewData builds a DATA message from already-encoded base64 text.
func NewData(b64 string) *Data {
	return &Data{Type: TypeData, Data: &b64}
}

// NewNegotiate builds a NEGOTIATE message.
func NewNegotiate(ciphers, modes, digests []string) *Negotiate {
	return &Negotiate{Type: TypeNegotiate, Ciphers: ciphers, Modes: modes, Digests: digests}
}

// NewOK builds an OK message.
func NewOK() *OK {
	return &OK{Type: TypeOK}
}

// NewClose builds a CLOSE message.
func NewClose() *Close {
	return &Close{Type: TypeClose}
}

// NewError builds the generic ERROR message.
func NewError() *Error {
	return &Error{Type: TypeError, Message: GenericErrorMessage}
}
