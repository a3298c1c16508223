// Package keystore keeps the faucet authority's mnemonic on disk encrypted
// with Argon2id + AES-256-GCM.
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"

	"github.com/klingon-exchange/klingon-escrow/internal/pubkey"
)

// Argon2 parameters (OWASP recommended for password hashing)
const (
	argon2Time        = 3
	argon2Memory      = 64 * 1024
	argon2Parallelism = 4
	argon2KeyLen      = 32
	argon2SaltLen     = 32
)

// Password limits
const (
	MinPasswordLength = 8
	MaxPasswordLength = 256
)

var (
	// ErrWrongPassword is returned when the keystore cannot be decrypted.
	ErrWrongPassword = errors.New("keystore: wrong password or corrupt file")

	// ErrBadParams is returned for key derivation parameters above the ones
	// this package writes.
	ErrBadParams = errors.New("keystore: unsupported key derivation parameters")
)

// EncryptedSeed is the on-disk form of a mnemonic.
type EncryptedSeed struct {
	Version     int              `json:"version"`
	PublicKey   pubkey.PublicKey `json:"public_key"`
	Ciphertext  []byte           `json:"ciphertext"`
	Salt        []byte           `json:"salt"`
	Nonce       []byte           `json:"nonce"`
	Time        uint32           `json:"time"`
	Memory      uint32           `json:"memory"`
	Parallelism uint8            `json:"parallelism"`
}

// Encrypt encrypts a mnemonic under password.
func Encrypt(mnemonic, password string) (*EncryptedSeed, error) {
	if err := ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("invalid password: %w", err)
	}
	kp, err := pubkey.KeypairFromMnemonic(mnemonic, "")
	if err != nil {
		return nil, err
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	gcm, err := newGCM(password, salt, argon2Time, argon2Memory, argon2Parallelism)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return &EncryptedSeed{
		Version:     1,
		PublicKey:   kp.PublicKey(),
		Ciphertext:  gcm.Seal(nil, nonce, []byte(mnemonic), nil),
		Salt:        salt,
		Nonce:       nonce,
		Time:        argon2Time,
		Memory:      argon2Memory,
		Parallelism: argon2Parallelism,
	}, nil
}

// Decrypt recovers the mnemonic.
func Decrypt(enc *EncryptedSeed, password string) (string, error) {
	time, memory, parallelism := enc.Time, enc.Memory, enc.Parallelism
	if time == 0 {
		time = argon2Time
	}
	if memory == 0 {
		memory = argon2Memory
	}
	if parallelism == 0 {
		parallelism = argon2Parallelism
	}
	if time > argon2Time || memory > argon2Memory || parallelism > argon2Parallelism {
		return "", fmt.Errorf("%w: time=%d memory=%d parallelism=%d", ErrBadParams, time, memory, parallelism)
	}

	gcm, err := newGCM(password, enc.Salt, time, memory, parallelism)
	if err != nil {
		return "", err
	}
	if len(enc.Nonce) != gcm.NonceSize() {
		return "", ErrWrongPassword
	}
	plaintext, err := gcm.Open(nil, enc.Nonce, enc.Ciphertext, nil)
	if err != nil {
		return "", ErrWrongPassword
	}
	defer clear(plaintext)
	return string(plaintext), nil
}

func newGCM(password string, salt []byte, time, memory uint32, parallelism uint8) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(password), salt, time, memory, parallelism, argon2KeyLen)
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Save writes enc to path with owner-only permissions.
func Save(enc *EncryptedSeed, path string) error {
	if err := validateFilePath(path); err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	data, err := json.MarshalIndent(enc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Load reads an encrypted seed from path.
func Load(path string) (*EncryptedSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keystore: %w", err)
	}
	var enc EncryptedSeed
	if err := json.Unmarshal(data, &enc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal keystore: %w", err)
	}
	return &enc, nil
}

// Unlock loads the keypair stored at path. If no keystore exists yet, a new
// mnemonic is generated, encrypted and saved, and created is true.
func Unlock(path, password string) (kp *pubkey.Keypair, created bool, err error) {
	enc, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		mnemonic, err := pubkey.GenerateMnemonic()
		if err != nil {
			return nil, false, err
		}
		if enc, err = Encrypt(mnemonic, password); err != nil {
			return nil, false, err
		}
		if err := Save(enc, path); err != nil {
			return nil, false, err
		}
		kp, err = pubkey.KeypairFromMnemonic(mnemonic, "")
		return kp, true, err
	}
	if err != nil {
		return nil, false, err
	}

	mnemonic, err := Decrypt(enc, password)
	if err != nil {
		return nil, false, err
	}
	if kp, err = pubkey.KeypairFromMnemonic(mnemonic, ""); err != nil {
		return nil, false, err
	}
	if !enc.PublicKey.IsZero() && kp.PublicKey() != enc.PublicKey {
		return nil, false, fmt.Errorf("keystore %s: key %s does not match recorded %s", path, kp.PublicKey(), enc.PublicKey)
	}
	return kp, false, nil
}

// ValidatePassword requires at least 8 characters and 3 of 4 character
// classes.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return fmt.Errorf("password must be at most %d characters", MaxPasswordLength)
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, c := range password {
		switch {
		case unicode.IsUpper(c):
			hasUpper = true
		case unicode.IsLower(c):
			hasLower = true
		case unicode.IsNumber(c):
			hasNumber = true
		case unicode.IsPunct(c) || unicode.IsSymbol(c):
			hasSpecial = true
		}
	}
	classes := 0
	for _, ok := range []bool{hasUpper, hasLower, hasNumber, hasSpecial} {
		if ok {
			classes++
		}
	}
	if classes < 3 {
		return fmt.Errorf("password must contain at least 3 of: uppercase, lowercase, number, special character")
	}
	return nil
}

func validateFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if filepath.Clean(path) != path && !filepath.IsAbs(path) {
		return fmt.Errorf("suspicious path (potential traversal): %s", path)
	}
	if !utf8.ValidString(path) {
		return fmt.Errorf("path contains invalid UTF-8")
	}
	return nil
}
