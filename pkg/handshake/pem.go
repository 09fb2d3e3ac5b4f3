package handshake

import (
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"math/big"
)

// PEMBlockType is the PEM block label for public keys.
const PEMBlockType = "PUBLIC KEY"

// oidDHKeyAgreement is the PKCS #3 dhKeyAgreement algorithm identifier.
var oidDHKeyAgreement = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 3, 1}

// dhParameter is the PKCS #3 DHParameter structure.
type dhParameter struct {
	P                  *big.Int
	G                  *big.Int
	PrivateValueLength int `asn1:"optional"`
}

type algorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters dhParameter
}

type subjectPublicKeyInfo struct {
	Algorithm algorithmIdentifier
	PublicKey asn1.BitString
}

// MarshalPublicKey encodes a public key as a PEM SubjectPublicKeyInfo.
func MarshalPublicKey(pub *PublicKey) (string, error) {
	if err := pub.Validate(); err != nil {
		return "", err
	}

	y, err := asn1.Marshal(pub.Y)
	if err != nil {
		return "", fmt.Errorf("failed to encode public value: %w", err)
	}

	der, err := asn1.Marshal(subjectPublicKeyInfo{
		Algorithm: algorithmIdentifier{
			Algorithm:  oidDHKeyAgreement,
			Parameters: dhParameter{P: pub.P, G: pub.G},
		},
		PublicKey: asn1.BitString{Bytes: y, BitLength: len(y) * 8},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode public key: %w", err)
	}

	return string(pem.EncodeToMemory(&pem.Block{Type: PEMBlockType, Bytes: der})), nil
}

// ParsePublicKey decodes a PEM SubjectPublicKeyInfo produced by
// MarshalPublicKey or by an OpenSSL-compatible peer.
func ParsePublicKey(text string) (*PublicKey, error) {
	block, _ := pem.Decode([]byte(text))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrInvalidPublicKey)
	}
	if block.Type != PEMBlockType {
		return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrInvalidPublicKey, block.Type)
	}

	var spki subjectPublicKeyInfo
	rest, err := asn1.Unmarshal(block.Bytes, &spki)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("%w: trailing data after key", ErrInvalidPublicKey)
	}
	if !spki.Algorithm.Algorithm.Equal(oidDHKeyAgreement) {
		return nil, fmt.Errorf("%w: unsupported algorithm %s", ErrInvalidPublicKey, spki.Algorithm.Algorithm)
	}
	if spki.PublicKey.BitLength%8 != 0 {
		return nil, fmt.Errorf("%w: public value is not byte aligned", ErrInvalidPublicKey)
	}

	y := new(big.Int)
	rest, err = asn1.Unmarshal(spki.PublicKey.Bytes, &y)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("%w: trailing data after public value", ErrInvalidPublicKey)
	}

	pub := &PublicKey{
		Parameters: Parameters{P: spki.Algorithm.Parameters.P, G: spki.Algorithm.Parameters.G},
		Y:          y,
	}
	if err := pub.Validate(); err != nil {
		return nil, err
	}
	return pub, nil
}
