// Package crypto seals archived audio at rest and derives archive keys from
// a passphrase.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrInvalidCiphertext = errors.New("crypto: invalid ciphertext")
	ErrDecryptionFailed  = errors.New("crypto: decryption failed")
)

const (
	// KeySize is the XChaCha20-Poly1305 key length.
	KeySize  = chacha20poly1305.KeySize
	SaltSize = 16
)

// GenerateSalt returns SaltSize random bytes.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("crypto: generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey stretches a passphrase into a KeySize key using Argon2id.
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, KeySize)
}

// SegmentCipher seals archive payloads with XChaCha20-Poly1305. The segment ID
// is bound as additional data so payloads cannot be swapped between rows.
type SegmentCipher struct {
	aead cipher.AEAD
}

// NewSegmentCipher creates a cipher from a KeySize key.
func NewSegmentCipher(key []byte) (*SegmentCipher, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	return &SegmentCipher{aead: aead}, nil
}

// Seal encrypts plaintext and returns nonce || ciphertext || tag.
func (c *SegmentCipher) Seal(segmentID string, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto: generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, []byte(segmentID)), nil
}

// Open reverses Seal.
func (c *SegmentCipher) Open(segmentID string, sealed []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(sealed) < ns+c.aead.Overhead() {
		return nil, ErrInvalidCiphertext
	}
	plaintext, err := c.aead.Open(nil, sealed[:ns], sealed[ns:], []byte(segmentID))
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// Overhead returns the bytes Seal adds to the plaintext.
func (c *SegmentCipher) Overhead() int {
	return c.aead.NonceSize() + c.aead.Overhead()
}
