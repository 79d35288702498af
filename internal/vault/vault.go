// Package vault seals small secrets and snapshots with a passphrase.
//
// Sealed format: [16-byte salt][12-byte nonce][AES-256-GCM ciphertext], the
// key derived from the passphrase and salt with Argon2id.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32
	argonTime = 3
	argonMem  = 64 * 1024
	argonPar  = 4

	sealedPrefix = "sealed:v1:"
)

var (
	// ErrNoPassphrase is returned when opening sealed data without a passphrase.
	ErrNoPassphrase = errors.New("vault: sealed value but no passphrase configured")
	// ErrCorrupt is returned for truncated input.
	ErrCorrupt = errors.New("vault: sealed value too small")
)

// DeriveKey derives a 32-byte AES-256 key from a passphrase and salt using Argon2id.
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMem, argonPar, keySize)
}

// Seal encrypts plaintext with a fresh salt and nonce.
func Seal(plaintext []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, saltSize+nonceSize+len(ciphertext))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// Open decrypts data produced by Seal.
func Open(data []byte, passphrase string) ([]byte, error) {
	if len(data) < saltSize+nonceSize {
		return nil, ErrCorrupt
	}

	salt := data[:saltSize]
	nonce := data[saltSize : saltSize+nonceSize]
	ciphertext := data[saltSize+nonceSize:]

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(DeriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// Vault seals strings for storage in text fields. Without a passphrase it
// passes values through unchanged.
type Vault struct {
	passphrase string
}

// New creates a Vault. An empty passphrase disables sealing.
func New(passphrase string) *Vault {
	return &Vault{passphrase: passphrase}
}

// Enabled reports whether values are sealed.
func (v *Vault) Enabled() bool {
	return v != nil && v.passphrase != ""
}

// SealString returns s sealed and base64-encoded, or s itself when disabled.
func (v *Vault) SealString(s string) (string, error) {
	if !v.Enabled() || s == "" {
		return s, nil
	}
	sealed, err := Seal([]byte(s), v.passphrase)
	if err != nil {
		return "", err
	}
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// OpenString reverses SealString. Unsealed input is returned as-is so values
// written before sealing was enabled keep working.
func (v *Vault) OpenString(s string) (string, error) {
	if !IsSealed(s) {
		return s, nil
	}
	if !v.Enabled() {
		return "", ErrNoPassphrase
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	plain, err := Open(raw, v.passphrase)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// IsSealed reports whether s was produced by SealString.
func IsSealed(s string) bool {
	return strings.HasPrefix(s, sealedPrefix)
}
