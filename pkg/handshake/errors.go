package handshake

import "errors"

// Handshake errors.
var (
	// ErrInvalidParameters indicates the domain parameters are unusable.
	ErrInvalidParameters = errors.New("invalid domain parameters")

	// ErrInvalidPublicKey indicates the peer public value could not be decoded
	// or lies outside the valid range.
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrParameterMismatch indicates the peer used different domain parameters.
	ErrParameterMismatch = errors.New("public key uses different domain parameters")

	// ErrAlreadyCompleted indicates a second attempt to derive key material.
	ErrAlreadyCompleted = errors.New("key exchange already completed")

	// ErrDerivation indicates the key-derivation step failed.
	ErrDerivation = errors.New("key derivation failed")
)

// ErrNotStarted indicates Complete was called before Start.
var ErrNotStarted = errors.New("key exchange not started")
