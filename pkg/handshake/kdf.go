package handshake

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of the derived key material.
const KeySize = 32

// hkdfInfo is the HKDF context string.
const hkdfInfo = "handshake data"

// DeriveKey expands a shared secret into KeySize bytes with HKDF-SHA256,
// no salt.
func DeriveKey(secret []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: empty shared secret", ErrDerivation)
	}

	reader := hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDerivation, err)
	}
	return key, nil
}
