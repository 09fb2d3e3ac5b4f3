package handshake

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

// Parameter constants.
const (
	// DefaultModulusBits is the modulus size generated per connection.
	DefaultModulusBits = 1024

	// DefaultGenerator is the group generator.
	DefaultGenerator = 2

	// MinModulusBits is the smallest modulus accepted anywhere. Values this
	// small are only useful in tests.
	MinModulusBits = 64

	// primalityRounds is the Miller-Rabin round count for the safe-prime check.
	primalityRounds = 20
)

// modp2Prime is the 1024-bit MODP prime of RFC 2409 section 6.2 (Oakley group 2).
const modp2Prime = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
	"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
	"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
	"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE65381" +
	"FFFFFFFFFFFFFFFF"

var (
	one = big.NewInt(1)
	two = big.NewInt(2)
)

// Parameters are the key-exchange domain parameters.
type Parameters struct {
	// P is the prime modulus.
	P *big.Int

	// G is the generator.
	G *big.Int
}

// Validate checks that the parameters describe a usable group.
func (p *Parameters) Validate() error {
	if p == nil || p.P == nil || p.G == nil {
		return fmt.Errorf("%w: missing modulus or generator", ErrInvalidParameters)
	}
	if p.P.BitLen() < MinModulusBits {
		return fmt.Errorf("%w: modulus has %d bits, need at least %d", ErrInvalidParameters, p.P.BitLen(), MinModulusBits)
	}
	if p.P.Bit(0) == 0 {
		return fmt.Errorf("%w: modulus is even", ErrInvalidParameters)
	}
	pMinus1 := new(big.Int).Sub(p.P, one)
	if p.G.Cmp(one) <= 0 || p.G.Cmp(pMinus1) >= 0 {
		return fmt.Errorf("%w: generator out of range", ErrInvalidParameters)
	}
	return nil
}

// Equal reports whether both parameter sets describe the same group.
func (p *Parameters) Equal(other *Parameters) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.P.Cmp(other.P) == 0 && p.G.Cmp(other.G) == 0
}

// ByteLen returns the modulus size in bytes.
func (p *Parameters) ByteLen() int {
	return (p.P.BitLen() + 7) / 8
}

// GenerateParameters generates a safe prime modulus p = 2q+1 of exactly
// bits bits and pairs it with the given generator. Generation is CPU-bound
// and can take seconds for 1024 bits; ctx cancels it between candidates.
func GenerateParameters(ctx context.Context, random io.Reader, bits, generator int) (*Parameters, error) {
	if bits < MinModulusBits {
		return nil, fmt.Errorf("%w: %d bits requested, need at least %d", ErrInvalidParameters, bits, MinModulusBits)
	}
	if generator < 2 {
		return nil, fmt.Errorf("%w: generator %d", ErrInvalidParameters, generator)
	}
	if random == nil {
		random = rand.Reader
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		q, err := rand.Prime(random, bits-1)
		if err != nil {
			return nil, fmt.Errorf("failed to generate prime: %w", err)
		}

		p := new(big.Int).Lsh(q, 1)
		p.Add(p, one)
		if p.BitLen() != bits || !p.ProbablyPrime(primalityRounds) {
			continue
		}

		params := &Parameters{P: p, G: big.NewInt(int64(generator))}
		if err := params.Validate(); err != nil {
			continue
		}
		return params, nil
	}
}

// MODPGroup2 returns the fixed 1024-bit group of RFC 2409 with generator 2.
// Using it skips per-connection prime generation.
func MODPGroup2() *Parameters {
	p, _ := new(big.Int).SetString(modp2Prime, 16)
	return &Parameters{P: p, G: big.NewInt(DefaultGenerator)}
}
