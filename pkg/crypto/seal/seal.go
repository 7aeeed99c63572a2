package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Algorithm names an AEAD construction.
type Algorithm string

const (
	XChaCha20Poly1305 Algorithm = "xchacha20-poly1305"
	AESGCM            Algorithm = "aes-gcm"
)

// Errors returned by Sealer.
var (
	ErrKeyTooShort   = errors.New("seal: key too short (minimum 16 bytes)")
	ErrUnknownAlgo   = errors.New("seal: unknown algorithm")
	ErrTooShort      = errors.New("seal: ciphertext too short")
	ErrOpenFailed    = errors.New("seal: authentication failed, wrong key or name")
	ErrWeakPassword  = errors.New("seal: passphrase too short (minimum 8 characters)")
	ErrInvalidSalt   = errors.New("seal: invalid salt")
	ErrInvalidKeyHex = errors.New("seal: invalid key encoding")
)

// MinKeyLength is the minimum master key length.
const MinKeyLength = 16

const hkdfInfo = "settree value seal v1"

// Sealer encrypts and authenticates values under their setting name.
// It is safe for concurrent use.
type Sealer struct {
	algo Algorithm
	aead cipher.AEAD
}

// New derives an AEAD key from masterKey and returns a Sealer using algo.
// An empty algo selects XChaCha20-Poly1305.
func New(masterKey []byte, algo Algorithm) (*Sealer, error) {
	if len(masterKey) < MinKeyLength {
		return nil, ErrKeyTooShort
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("seal: derive key: %w", err)
	}
	defer zero(key)

	return newWithKey(key, algo)
}

func newWithKey(key []byte, algo Algorithm) (*Sealer, error) {
	var (
		aead cipher.AEAD
		err  error
	)

	switch algo {
	case "", XChaCha20Poly1305:
		algo = XChaCha20Poly1305
		aead, err = chacha20poly1305.NewX(key)
	case AESGCM:
		block, berr := aes.NewCipher(key)
		if berr != nil {
			return nil, fmt.Errorf("seal: %w", berr)
		}
		aead, err = cipher.NewGCM(block)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlgo, algo)
	}
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}

	return &Sealer{algo: algo, aead: aead}, nil
}

// Algorithm returns the AEAD in use.
func (s *Sealer) Algorithm() Algorithm {
	return s.algo
}

// Overhead returns the number of bytes Seal adds to a value.
func (s *Sealer) Overhead() int {
	return s.aead.NonceSize() + s.aead.Overhead()
}

// Seal encrypts plaintext for storage under name.
func (s *Sealer) Seal(name string, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("seal: nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, []byte(name)), nil
}

// Open decrypts a value sealed under name.
func (s *Sealer) Open(name string, sealed []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n+s.aead.Overhead() {
		return nil, ErrTooShort
	}

	plain, err := s.aead.Open(nil, sealed[:n], sealed[n:], []byte(name))
	if err != nil {
		return nil, ErrOpenFailed
	}
	return plain, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
