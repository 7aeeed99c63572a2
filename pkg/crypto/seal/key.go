package seal

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// SaltLength is the salt length for passphrase derivation.
const SaltLength = 16

// MinPassphraseLength is the minimum passphrase length.
const MinPassphraseLength = 8

const (
	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
)

// NewFromPassphrase derives the AEAD key from passphrase and salt with
// Argon2id. The same passphrase and salt always yield the same Sealer.
func NewFromPassphrase(passphrase, salt []byte, algo Algorithm) (*Sealer, error) {
	if len(passphrase) < MinPassphraseLength {
		return nil, ErrWeakPassword
	}
	if len(salt) != SaltLength {
		return nil, ErrInvalidSalt
	}

	key := argon2.IDKey(passphrase, salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	defer zero(key)

	return newWithKey(key, algo)
}

// NewSalt returns a random salt for NewFromPassphrase.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("seal: salt: %w", err)
	}
	return salt, nil
}

// GenerateKey returns a random master key of length bytes.
func GenerateKey(length int) ([]byte, error) {
	if length < MinKeyLength {
		return nil, ErrKeyTooShort
	}
	key := make([]byte, length)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("seal: generate key: %w", err)
	}
	return key, nil
}

// ParseKey decodes a master key given as "hex:..." or "base64:...".
// A bare string is read as hex.
func ParseKey(s string) ([]byte, error) {
	var (
		key []byte
		err error
	)

	switch {
	case strings.HasPrefix(s, "base64:"):
		key, err = base64.StdEncoding.DecodeString(strings.TrimPrefix(s, "base64:"))
	default:
		key, err = hex.DecodeString(strings.TrimPrefix(s, "hex:"))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyHex, err)
	}
	if len(key) < MinKeyLength {
		return nil, ErrKeyTooShort
	}
	return key, nil
}
