package handshake

import (
	"bytes"
	"context"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smallParams is shared by tests that need a generated group.
func smallParams(t *testing.T) *Parameters {
	t.Helper()
	params, err := GenerateParameters(context.Background(), nil, 128, DefaultGenerator)
	require.NoError(t, err)
	return params
}

func TestGenerateParametersSafePrime(t *testing.T) {
	params := smallParams(t)

	assert.Equal(t, 128, params.P.BitLen())
	assert.True(t, params.P.ProbablyPrime(20))

	q := new(big.Int).Rsh(params.P, 1)
	assert.True(t, q.ProbablyPrime(20), "(p-1)/2 should be prime")
	assert.Equal(t, int64(2), params.G.Int64())
	assert.NoError(t, params.Validate())
}

func TestGenerateParametersRejects(t *testing.T) {
	_, err := GenerateParameters(context.Background(), nil, 32, 2)
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, err = GenerateParameters(context.Background(), nil, 128, 1)
	assert.ErrorIs(t, err, ErrInvalidParameters)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = GenerateParameters(ctx, nil, 128, 2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMODPGroup2(t *testing.T) {
	params := MODPGroup2()
	assert.Equal(t, 1024, params.P.BitLen())
	assert.True(t, params.P.ProbablyPrime(20))
	assert.Equal(t, 128, params.ByteLen())
	assert.NoError(t, params.Validate())
}

func TestParametersValidate(t *testing.T) {
	p := MODPGroup2().P

	tests := []struct {
		name   string
		params *Parameters
	}{
		{"nil", nil},
		{"missing generator", &Parameters{P: p}},
		{"even modulus", &Parameters{P: new(big.Int).Add(p, big.NewInt(1)), G: big.NewInt(2)}},
		{"tiny modulus", &Parameters{P: big.NewInt(23), G: big.NewInt(5)}},
		{"generator one", &Parameters{P: p, G: big.NewInt(1)}},
		{"generator p-1", &Parameters{P: p, G: new(big.Int).Sub(p, big.NewInt(1))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.params.Validate(), ErrInvalidParameters)
		})
	}
}

func TestTwoPeersDeriveSameKey(t *testing.T) {
	for name, params := range map[string]*Parameters{
		"modp2":     MODPGroup2(),
		"generated": smallParams(t),
	} {
		t.Run(name, func(t *testing.T) {
			server := NewEngine(nil)
			client := NewEngine(nil)

			serverPEM, err := server.Start(params)
			require.NoError(t, err)
			clientPEM, err := client.Start(params)
			require.NoError(t, err)

			serverKey, err := server.Complete(clientPEM)
			require.NoError(t, err)
			clientKey, err := client.Complete(serverPEM)
			require.NoError(t, err)

			assert.Len(t, serverKey, KeySize)
			assert.Equal(t, serverKey, clientKey)
			assert.True(t, server.Completed())
			assert.Equal(t, serverKey, server.Key())
		})
	}
}

func TestEngineOrdering(t *testing.T) {
	params := MODPGroup2()
	e := NewEngine(nil)

	_, err := e.Complete("anything")
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.Nil(t, e.Parameters())
	assert.Empty(t, e.PublicKeyPEM())

	_, err = e.Start(params)
	require.NoError(t, err)
	_, err = e.Start(params)
	assert.Error(t, err)

	peer := NewEngine(nil)
	peerPEM, err := peer.Start(params)
	require.NoError(t, err)

	_, err = e.Complete(peerPEM)
	require.NoError(t, err)
	_, err = e.Complete(peerPEM)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
}

func TestPublicKeyPEMEncoding(t *testing.T) {
	priv, err := GenerateKey(nil, MODPGroup2())
	require.NoError(t, err)

	text, err := MarshalPublicKey(priv.Public())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "-----BEGIN PUBLIC KEY-----\n"))

	block, _ := pem.Decode([]byte(text))
	require.NotNil(t, block)
	oid, err := asn1.Marshal(oidDHKeyAgreement)
	require.NoError(t, err)
	assert.True(t, bytes.Contains(block.Bytes, oid), "SPKI should carry dhKeyAgreement OID")

	parsed, err := ParsePublicKey(text)
	require.NoError(t, err)
	assert.Equal(t, 0, parsed.Y.Cmp(priv.Y))
	assert.True(t, parsed.Parameters.Equal(&priv.Parameters))
}

func marshalRaw(t *testing.T, oid asn1.ObjectIdentifier, params *Parameters, y *big.Int) string {
	t.Helper()
	yDER, err := asn1.Marshal(y)
	require.NoError(t, err)
	der, err := asn1.Marshal(subjectPublicKeyInfo{
		Algorithm: algorithmIdentifier{
			Algorithm:  oid,
			Parameters: dhParameter{P: params.P, G: params.G},
		},
		PublicKey: asn1.BitString{Bytes: yDER, BitLength: len(yDER) * 8},
	})
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: PEMBlockType, Bytes: der}))
}

func TestParsePublicKeyRejects(t *testing.T) {
	params := MODPGroup2()
	pMinus1 := new(big.Int).Sub(params.P, big.NewInt(1))

	valid, err := GenerateKey(nil, params)
	require.NoError(t, err)
	validPEM, err := MarshalPublicKey(valid.Public())
	require.NoError(t, err)

	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"not pem", "hello world"},
		{"wrong block type", string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte{1, 2, 3}}))},
		{"garbage der", string(pem.EncodeToMemory(&pem.Block{Type: PEMBlockType, Bytes: []byte{0x30, 0x82, 0xff}}))},
		{"truncated", validPEM[:len(validPEM)/2]},
		{"wrong algorithm", marshalRaw(t, asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}, params, valid.Y)},
		{"y equals one", marshalRaw(t, oidDHKeyAgreement, params, big.NewInt(1))},
		{"y equals p-1", marshalRaw(t, oidDHKeyAgreement, params, pMinus1)},
		{"y negative", marshalRaw(t, oidDHKeyAgreement, params, big.NewInt(-5))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				_, err := ParsePublicKey(tt.text)
				assert.ErrorIs(t, err, ErrInvalidPublicKey)
			})
		})
	}
}

func TestCompleteRejectsForeignGroup(t *testing.T) {
	e := NewEngine(nil)
	_, err := e.Start(MODPGroup2())
	require.NoError(t, err)

	other := NewEngine(nil)
	otherPEM, err := other.Start(smallParams(t))
	require.NoError(t, err)

	_, err = e.Complete(otherPEM)
	assert.ErrorIs(t, err, ErrParameterMismatch)
	assert.False(t, e.Completed())
}

func TestSharedSecretPadded(t *testing.T) {
	params := MODPGroup2()
	a, err := GenerateKey(nil, params)
	require.NoError(t, err)
	b, err := GenerateKey(nil, params)
	require.NoError(t, err)

	secret, err := a.SharedSecret(b.Public())
	require.NoError(t, err)
	assert.Len(t, secret, params.ByteLen())
}

func TestDeriveKey(t *testing.T) {
	k1, err := DeriveKey([]byte("shared"))
	require.NoError(t, err)
	k2, err := DeriveKey([]byte("shared"))
	require.NoError(t, err)
	k3, err := DeriveKey([]byte("other"))
	require.NoError(t, err)

	assert.Len(t, k1, KeySize)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)

	_, err = DeriveKey(nil)
	assert.ErrorIs(t, err, ErrDerivation)
}

func TestFixedParametersSource(t *testing.T) {
	src := FixedParameters(MODPGroup2())
	params, err := src(context.Background())
	require.NoError(t, err)
	assert.True(t, params.Equal(MODPGroup2()))

	_, err = FixedParameters(&Parameters{})(context.Background())
	assert.ErrorIs(t, err, ErrInvalidParameters)
}
