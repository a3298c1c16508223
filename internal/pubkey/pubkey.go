// Package pubkey implements 32-byte ed25519 account addresses, their base58
// text form, and deterministic program-derived addresses.
package pubkey

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/btcsuite/btcd/btcutil/base58"
)

// Size is the length of an address in bytes.
const Size = 32

// Derivation limits.
const (
	MaxSeeds      = 16
	MaxSeedLength = 32
)

const pdaMarker = "ProgramDerivedAddress"

var (
	ErrInvalidLength    = errors.New("pubkey: invalid length")
	ErrInvalidEncoding  = errors.New("pubkey: invalid base58 encoding")
	ErrMaxSeedLength    = errors.New("pubkey: seed longer than 32 bytes")
	ErrTooManySeeds     = errors.New("pubkey: too many seeds")
	ErrOnCurve          = errors.New("pubkey: derived address is on the ed25519 curve")
	ErrBumpSeedNotFound = errors.New("pubkey: no viable bump seed")
)

// PublicKey is an account address.
type PublicKey [Size]byte

// Zero is the all-zero address, also used as the system program id.
var Zero PublicKey

// Parse decodes a base58 address.
func Parse(s string) (PublicKey, error) {
	var k PublicKey
	raw := base58.Decode(s)
	if len(raw) == 0 && s != "" {
		return k, fmt.Errorf("%w: %q", ErrInvalidEncoding, s)
	}
	if len(raw) != Size {
		return k, fmt.Errorf("%w: %d bytes", ErrInvalidLength, len(raw))
	}
	copy(k[:], raw)
	return k, nil
}

// MustParse is Parse for compile-time constants. It panics on bad input.
func MustParse(s string) PublicKey {
	k, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return k
}

// FromBytes copies a 32-byte slice into a PublicKey.
func FromBytes(b []byte) (PublicKey, error) {
	var k PublicKey
	if len(b) != Size {
		return k, fmt.Errorf("%w: %d bytes", ErrInvalidLength, len(b))
	}
	copy(k[:], b)
	return k, nil
}

func (k PublicKey) String() string {
	return base58.Encode(k[:])
}

// Bytes returns a copy of the raw key.
func (k PublicKey) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, k[:])
	return b
}

// IsZero reports whether k is the zero address.
func (k PublicKey) IsZero() bool {
	return k == Zero
}

// IsOnCurve reports whether k decodes to a point on the ed25519 curve, i.e.
// whether a private key could exist for it.
func (k PublicKey) IsOnCurve() bool {
	_, err := new(edwards25519.Point).SetBytes(k[:])
	return err == nil
}

// MarshalText implements encoding.TextMarshaler.
func (k PublicKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// CreateProgramAddress derives the address for seeds under program. The seeds
// must already include the bump byte. Addresses that land on the curve are
// rejected so that no private key can sign for them.
func CreateProgramAddress(seeds [][]byte, program PublicKey) (PublicKey, error) {
	if len(seeds) > MaxSeeds {
		return Zero, ErrTooManySeeds
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return Zero, ErrMaxSeedLength
		}
		h.Write(seed)
	}
	h.Write(program[:])
	h.Write([]byte(pdaMarker))

	var k PublicKey
	copy(k[:], h.Sum(nil))
	if k.IsOnCurve() {
		return Zero, ErrOnCurve
	}
	return k, nil
}

// FindProgramAddress searches bumps from 255 down and returns the first
// off-curve address together with the bump that produced it.
func FindProgramAddress(seeds [][]byte, program PublicKey) (PublicKey, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return Zero, 0, ErrTooManySeeds
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		k, err := CreateProgramAddress(withBump, program)
		if err == nil {
			return k, uint8(bump), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return Zero, 0, err
		}
	}
	return Zero, 0, ErrBumpSeedNotFound
}
