// Package crypto seals OAuth refresh tokens at rest. Values are prefixed
// so the store can tell sealed tokens from plaintext ones written before
// a secret key was configured.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	encPrefix   = "enc:"
	plainPrefix = "plain:"
)

// Box encrypts and decrypts short secrets. A Box built without a key
// passes values through with a plaintext marker.
type Box struct {
	key []byte
}

// New derives a sealing key from the configured secret. An empty secret
// yields a passthrough Box.
func New(secretKey string) *Box {
	if secretKey == "" {
		return &Box{}
	}
	sum := sha256.Sum256([]byte(secretKey))
	return &Box{key: sum[:]}
}

// Sealed reports whether this Box encrypts values.
func (b *Box) Sealed() bool {
	return len(b.key) > 0
}

// Encrypt seals plaintext for storage.
func (b *Box) Encrypt(plaintext string) (string, error) {
	if !b.Sealed() {
		return plainPrefix + plaintext, nil
	}
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", fmt.Errorf("failed to build cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return encPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt recovers a stored value. Plaintext-marked and unmarked legacy
// values come back as-is; sealed values need the matching key.
func (b *Box) Decrypt(stored string) (string, error) {
	if plain, ok := strings.CutPrefix(stored, plainPrefix); ok {
		return plain, nil
	}
	sealed, ok := strings.CutPrefix(stored, encPrefix)
	if !ok {
		return stored, nil
	}
	if !b.Sealed() {
		return "", fmt.Errorf("stored value is encrypted but no SECRET_KEY is configured")
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed value: %w", err)
	}
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", fmt.Errorf("failed to build cipher: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("sealed value too short")
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt value: %w", err)
	}
	return string(plaintext), nil
}
