package handshake

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

// PublicKey is a public value together with its domain parameters.
type PublicKey struct {
	Parameters
	Y *big.Int
}

// Validate checks 1 < y < p-1.
func (k *PublicKey) Validate() error {
	if k == nil || k.Y == nil {
		return fmt.Errorf("%w: missing public value", ErrInvalidPublicKey)
	}
	if err := k.Parameters.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}
	pMinus1 := new(big.Int).Sub(k.P, one)
	if k.Y.Cmp(one) <= 0 || k.Y.Cmp(pMinus1) >= 0 {
		return fmt.Errorf("%w: public value out of range", ErrInvalidPublicKey)
	}
	return nil
}

// PrivateKey is a private exponent and its public value.
type PrivateKey struct {
	PublicKey
	X *big.Int
}

// GenerateKey generates a key pair over params. The private exponent is
// drawn uniformly from [2, p-2].
func GenerateKey(random io.Reader, params *Parameters) (*PrivateKey, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if random == nil {
		random = rand.Reader
	}

	// x = 2 + rand[0, p-3)
	limit := new(big.Int).Sub(params.P, big.NewInt(3))
	x, err := rand.Int(random, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private exponent: %w", err)
	}
	x.Add(x, two)

	y := new(big.Int).Exp(params.G, x, params.P)

	return &PrivateKey{
		PublicKey: PublicKey{
			Parameters: Parameters{P: new(big.Int).Set(params.P), G: new(big.Int).Set(params.G)},
			Y:          y,
		},
		X: x,
	}, nil
}

// Public returns the public half of the key pair.
func (k *PrivateKey) Public() *PublicKey {
	return &k.PublicKey
}

// SharedSecret computes peer.Y^x mod p, left-padded with zeros to the
// modulus length. The peer must use the same domain parameters.
func (k *PrivateKey) SharedSecret(peer *PublicKey) ([]byte, error) {
	if err := peer.Validate(); err != nil {
		return nil, err
	}
	if !k.Parameters.Equal(&peer.Parameters) {
		return nil, ErrParameterMismatch
	}

	z := new(big.Int).Exp(peer.Y, k.X, k.P)
	return z.FillBytes(make([]byte, k.ByteLen())), nil
}
