// Package crypto implements the SecretCipher port with per-field key
// derivation: every encryption draws a fresh salt, derives an AES-256 key from
// the master secret with PBKDF2-HMAC-SHA256 and seals the value with AES-GCM.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/ericfisherdev/garminsync/internal/domain/model"
	"github.com/ericfisherdev/garminsync/internal/domain/port/driven"
)

const (
	// Iterations is the PBKDF2 work factor.
	Iterations = 100_000
	// SaltSize is the length of the random salt stored next to each ciphertext.
	SaltSize = 16
	keySize  = 32
)

// ErrEmptySecret is returned when the cipher is constructed without a master secret.
var ErrEmptySecret = errors.New("master secret must not be empty")

// Compile-time interface satisfaction check.
var _ driven.SecretCipher = (*PBKDF2Cipher)(nil)

// PBKDF2Cipher encrypts credential fields under keys derived from a single
// master secret. It holds no mutable state and is safe for concurrent use.
type PBKDF2Cipher struct {
	secret []byte
	rand   io.Reader
}

// NewPBKDF2Cipher returns a cipher keyed by the given master secret.
func NewPBKDF2Cipher(secret string) (*PBKDF2Cipher, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &PBKDF2Cipher{secret: []byte(secret), rand: rand.Reader}, nil
}

// Encrypt seals plaintext and returns the ciphertext (nonce || ciphertext || tag)
// together with the salt its key was derived from.
func (c *PBKDF2Cipher) Encrypt(plaintext string) (model.EncryptedField, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(c.rand, salt); err != nil {
		return model.EncryptedField{}, fmt.Errorf("rand salt: %w", err)
	}

	gcm, err := c.aead(salt)
	if err != nil {
		return model.EncryptedField{}, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return model.EncryptedField{}, fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends to nonce, producing: nonce || ciphertext || tag.
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return model.EncryptedField{Ciphertext: sealed, Salt: salt}, nil
}

// Decrypt opens a field produced by Encrypt. Any mismatch in key or salt, a
// truncated payload or a failed tag check yields model.ErrDecryption.
func (c *PBKDF2Cipher) Decrypt(field model.EncryptedField) (string, error) {
	if len(field.Salt) == 0 {
		return "", fmt.Errorf("%w: missing salt", model.ErrDecryption)
	}

	gcm, err := c.aead(field.Salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(field.Ciphertext) < nonceSize+gcm.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", model.ErrDecryption)
	}

	nonce, sealed := field.Ciphertext[:nonceSize], field.Ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrDecryption, err)
	}
	return string(plaintext), nil
}

func (c *PBKDF2Cipher) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(c.secret, salt, Iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}
