package negotiation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChoose(t *testing.T) {
	tests := []struct {
		name    string
		offer   Offer
		want    Suite
		wantErr error
	}{
		{
			name:  "prefers strongest offered",
			offer: Offer{Ciphers: []string{"AES", "ChaCha20"}, Modes: []string{"CBC", "GCM"}, Digests: []string{"SHA-256", "SHA-512"}},
			want:  Suite{Cipher: CipherChaCha20, Mode: ModeGCM, Digest: DigestSHA512},
		},
		{
			name:  "falls back",
			offer: Offer{Ciphers: []string{"AES"}, Modes: []string{"CBC"}, Digests: []string{"SHA-256"}},
			want:  Suite{Cipher: CipherAES, Mode: ModeCBC, Digest: DigestSHA256},
		},
		{
			name:    "unknown cipher stops before mode",
			offer:   Offer{Ciphers: []string{"DES"}, Modes: []string{"GCM"}, Digests: []string{"SHA-512"}},
			want:    Suite{},
			wantErr: ErrNoCipher,
		},
		{
			name:    "unknown mode keeps cipher",
			offer:   Offer{Ciphers: []string{"AES"}, Modes: []string{"EBC"}, Digests: []string{"SHA-512"}},
			want:    Suite{Cipher: CipherAES},
			wantErr: ErrNoMode,
		},
		{
			name:    "unknown digest keeps cipher and mode",
			offer:   Offer{Ciphers: []string{"ChaCha20"}, Modes: []string{"GCM"}, Digests: []string{"SHA-384"}},
			want:    Suite{Cipher: CipherChaCha20, Mode: ModeGCM},
			wantErr: ErrNoDigest,
		},
		{
			name:    "names are case sensitive",
			offer:   Offer{Ciphers: []string{"aes"}, Modes: []string{"gcm"}, Digests: []string{"sha-512"}},
			wantErr: ErrNoCipher,
		},
		{
			name:    "empty list is present but unacceptable",
			offer:   Offer{Ciphers: []string{}, Modes: []string{"GCM"}, Digests: []string{"SHA-512"}},
			wantErr: ErrNoCipher,
		},
		{
			name:    "missing list",
			offer:   Offer{Ciphers: []string{"AES"}, Digests: []string{"SHA-512"}},
			wantErr: ErrMissingList,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Choose(tt.offer)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
				assert.True(t, got.Complete())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSuiteString(t *testing.T) {
	assert.Equal(t, "ChaCha20/GCM/SHA-512", Suite{CipherChaCha20, ModeGCM, DigestSHA512}.String())
	assert.Equal(t, "AES/-/-", Suite{Cipher: CipherAES}.String())
}
