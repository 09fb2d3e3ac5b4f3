// Package negotiation picks the cipher, mode and digest for a session from
// the lists a client offers.
//
// Each category has a fixed server preference order. The first preferred
// algorithm the client offered wins; names are matched exactly. Categories
// are decided in order (cipher, mode, digest) and the first category with no
// acceptable algorithm stops the decision, leaving the rest unchosen.
package negotiation

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Algorithm names.
const (
	CipherChaCha20 = "ChaCha20"
	CipherAES      = "AES"

	ModeGCM = "GCM"
	ModeCBC = "CBC"

	DigestSHA512 = "SHA-512"
	DigestSHA256 = "SHA-256"
)

// Server preference, most preferred first.
var (
	CipherPreference = []string{CipherChaCha20, CipherAES}
	ModePreference   = []string{ModeGCM, ModeCBC}
	DigestPreference = []string{DigestSHA512, DigestSHA256}
)

// Negotiation errors.
var (
	// ErrMissingList indicates the offer lacked one of the three lists.
	ErrMissingList = errors.New("offer is missing a list")

	// ErrNoCipher indicates no offered cipher is acceptable.
	ErrNoCipher = errors.New("no acceptable cipher")

	// ErrNoMode indicates no offered mode is acceptable.
	ErrNoMode = errors.New("no acceptable mode")

	// ErrNoDigest indicates no offered digest is acceptable.
	ErrNoDigest = errors.New("no acceptable digest")
)

// Offer is what a client proposes. A nil list means the list was absent.
type Offer struct {
	Ciphers []string
	Modes   []string
	Digests []string
}

// Suite is the outcome of a negotiation. Empty fields were not chosen.
type Suite struct {
	Cipher string
	Mode   string
	Digest string
}

// Complete reports whether all three categories were chosen.
func (s Suite) Complete() bool {
	return s.Cipher != "" && s.Mode != "" && s.Digest != ""
}

// String returns "cipher/mode/digest" with "-" for unchosen fields.
func (s Suite) String() string {
	parts := []string{s.Cipher, s.Mode, s.Digest}
	for i, p := range parts {
		if p == "" {
			parts[i] = "-"
		}
	}
	return strings.Join(parts, "/")
}

// Choose picks a suite from offer. On failure it still returns whatever was
// chosen before the failing category, so the caller can report it.
func Choose(offer Offer) (Suite, error) {
	var suite Suite

	if offer.Ciphers == nil || offer.Modes == nil || offer.Digests == nil {
		return suite, ErrMissingList
	}

	var ok bool
	if suite.Cipher, ok = pick(CipherPreference, offer.Ciphers); !ok {
		return suite, fmt.Errorf("%w: offered %v", ErrNoCipher, offer.Ciphers)
	}
	if suite.Mode, ok = pick(ModePreference, offer.Modes); !ok {
		return suite, fmt.Errorf("%w: offered %v", ErrNoMode, offer.Modes)
	}
	if suite.Digest, ok = pick(DigestPreference, offer.Digests); !ok {
		return suite, fmt.Errorf("%w: offered %v", ErrNoDigest, offer.Digests)
	}
	return suite, nil
}

func pick(preference, offered []string) (string, bool) {
	for _, name := range preference {
		if slices.Contains(offered, name) {
			return name, true
		}
	}
	return "", false
}
