package pubkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/tyler-smith/go-bip39"
)

// Keypair is an ed25519 signing key.
type Keypair struct {
	priv ed25519.PrivateKey
}

// NewKeypair generates a random keypair.
func NewKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

// KeypairFromSeed builds a keypair from a 32-byte ed25519 seed.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid seed length: %d", len(seed))
	}
	return &Keypair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// KeypairFromMnemonic derives a keypair from a BIP39 mnemonic the way
// solana-keygen does without a derivation path: the first 32 bytes of the
// BIP39 seed become the ed25519 seed.
func KeypairFromMnemonic(mnemonic, passphrase string) (*Keypair, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	return KeypairFromSeed(seed[:ed25519.SeedSize])
}

// GenerateMnemonic returns a new 24-word BIP39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// PublicKey returns the address of the keypair.
func (k *Keypair) PublicKey() PublicKey {
	var pk PublicKey
	copy(pk[:], k.priv.Public().(ed25519.PublicKey))
	return pk
}

// Sign signs message.
func (k *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.priv, message)
}

// Verify reports whether sig is a valid signature of message by key.
func Verify(key PublicKey, message, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(key[:]), message, sig)
}
