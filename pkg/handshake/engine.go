package handshake

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ParameterSource supplies the domain parameters for a new connection.
type ParameterSource func(ctx context.Context) (*Parameters, error)

// GeneratedParameters returns a source that generates a fresh safe-prime
// group on every call.
func GeneratedParameters(random io.Reader, bits, generator int) ParameterSource {
	return func(ctx context.Context) (*Parameters, error) {
		return GenerateParameters(ctx, random, bits, generator)
	}
}

// FixedParameters returns a source that always yields params.
func FixedParameters(params *Parameters) ParameterSource {
	return func(context.Context) (*Parameters, error) {
		if err := params.Validate(); err != nil {
			return nil, err
		}
		return params, nil
	}
}

// Engine runs one side of a single key exchange. Start and Complete each
// succeed at most once.
type Engine struct {
	mu     sync.Mutex
	random io.Reader
	priv   *PrivateKey
	pem    string
	key    []byte
}

// NewEngine creates an engine drawing randomness from random
// (crypto/rand when nil).
func NewEngine(random io.Reader) *Engine {
	return &Engine{random: random}
}

// Start generates the local key pair over params and returns its PEM
// encoding for the peer.
func (e *Engine) Start(params *Parameters) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.priv != nil {
		return "", errors.New("key exchange already started")
	}

	priv, err := GenerateKey(e.random, params)
	if err != nil {
		return "", err
	}
	pemText, err := MarshalPublicKey(priv.Public())
	if err != nil {
		return "", err
	}

	e.priv = priv
	e.pem = pemText
	return pemText, nil
}

// Complete parses the peer's PEM public value and derives the session key.
func (e *Engine) Complete(peerPEM string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.priv == nil {
		return nil, ErrNotStarted
	}
	if e.key != nil {
		return nil, ErrAlreadyCompleted
	}

	peer, err := ParsePublicKey(peerPEM)
	if err != nil {
		return nil, err
	}
	secret, err := e.priv.SharedSecret(peer)
	if err != nil {
		return nil, err
	}
	key, err := DeriveKey(secret)
	if err != nil {
		return nil, err
	}

	e.key = key
	return key, nil
}

// Parameters returns the domain parameters, or nil before Start.
func (e *Engine) Parameters() *Parameters {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.priv == nil {
		return nil
	}
	return &e.priv.Parameters
}

// PublicKeyPEM returns the local public value, or "" before Start.
func (e *Engine) PublicKeyPEM() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pem
}

// Key returns the derived key, or nil before Complete.
func (e *Engine) Key() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.key
}

// Completed reports whether a key has been derived.
func (e *Engine) Completed() bool {
	return e.Key() != nil
}
