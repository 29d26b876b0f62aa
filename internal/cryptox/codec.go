// Package cryptox encrypts message bodies at rest with AES-256-GCM.
//
// The key is derived once from a secret with scrypt (N=16384, r=8, p=1) and a
// fixed salt, so rows written by earlier deployments stay readable. Each call to
// Encrypt draws a fresh 12-byte IV from crypto/rand; ciphertext, IV and tag are
// stored hex encoded in separate columns.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"

	"chat-realtime/internal/apperr"
)

const (
	keySize   = 32
	nonceSize = 12
	tagSize   = 16

	scryptN = 16384
	scryptR = 8
	scryptP = 1
)

var ErrEmptySecret = errors.New("encryption secret cannot be empty")

// Sealed is the stored form of an encrypted text message.
type Sealed struct {
	Ciphertext string
	IV         string
	AuthTag    string
}

// Codec is safe for concurrent use.
type Codec struct {
	aead cipher.AEAD
	rand io.Reader
}

// NewCodec derives the key from secret and salt.
func NewCodec(secret, salt string) (*Codec, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	key, err := scrypt.Key([]byte(secret), []byte(salt), scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &Codec{aead: aead, rand: rand.Reader}, nil
}

// Encrypt seals plaintext under a fresh random IV.
func (c *Codec) Encrypt(plaintext string) (Sealed, error) {
	iv := make([]byte, nonceSize)
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return Sealed{}, apperr.Wrap(apperr.CodeCrypto, "generate iv", err)
	}
	out := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	body, tag := out[:len(out)-tagSize], out[len(out)-tagSize:]
	return Sealed{
		Ciphertext: hex.EncodeToString(body),
		IV:         hex.EncodeToString(iv),
		AuthTag:    hex.EncodeToString(tag),
	}, nil
}

// Decrypt opens a sealed message. Any missing component yields "" without
// touching the cipher; a tag mismatch returns apperr.ErrCrypto.
func (c *Codec) Decrypt(ciphertext, iv, authTag string) (string, error) {
	if ciphertext == "" || iv == "" || authTag == "" {
		return "", nil
	}
	body, err := hex.DecodeString(ciphertext)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeCrypto, "decode ciphertext", err)
	}
	nonce, err := hex.DecodeString(iv)
	if err != nil || len(nonce) != nonceSize {
		return "", apperr.Wrap(apperr.CodeCrypto, "decode iv", err)
	}
	tag, err := hex.DecodeString(authTag)
	if err != nil || len(tag) != tagSize {
		return "", apperr.Wrap(apperr.CodeCrypto, "decode auth tag", err)
	}
	plain, err := c.aead.Open(nil, nonce, append(body, tag...), nil)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeCrypto, "authenticate message", err)
	}
	return string(plain), nil
}

// DecryptPtr is the defensive read-path helper for nullable columns.
func (c *Codec) DecryptPtr(ciphertext, iv, authTag *string) (string, error) {
	if ciphertext == nil || iv == nil || authTag == nil {
		return "", nil
	}
	return c.Decrypt(*ciphertext, *iv, *authTag)
}
