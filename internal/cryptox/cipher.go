// Package cryptox implements the credential cipher: per-session key
// derivation and authenticated encryption of credential blobs.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/threadcraft/threadcraft/internal/common"
)

const (
	keySize   = 32
	nonceSize = 12
)

// Cipher encrypts and decrypts credential blobs with keys derived from a
// session handle and a process-wide master secret. The master secret is
// explicit configuration, never derived from user input alone, so leaking a
// handle is not enough to decrypt a stored blob.
type Cipher struct {
	masterSecret []byte
}

// NewCipher returns a Cipher keyed by the given master secret.
func NewCipher(masterSecret []byte) (*Cipher, error) {
	if len(masterSecret) == 0 {
		return nil, fmt.Errorf("%w: empty master secret", common.ErrValidation)
	}
	return &Cipher{masterSecret: masterSecret}, nil
}

// DeriveKey deterministically derives a 256-bit AES key for the given
// session handle via HKDF-SHA256 over the master secret. The same handle
// always yields the same key, so independent requests within a session can
// decrypt the same stored blob without retaining key material in memory.
func (c *Cipher) DeriveKey(handle string) ([]byte, error) {
	r := hkdf.New(sha256.New, c.masterSecret, nil, []byte("threadcraft/credentials/v1:"+handle))

	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("key derivation: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext with AES-256-GCM under the given key. A fresh
// random 12-byte nonce is generated per call and prepended to the sealed
// data, so the result is a single opaque blob suitable for storage.
func (c *Cipher) Encrypt(key, plaintext []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := common.GenerateRandByteArray(nonceSize)
	return aesgcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a blob produced by Encrypt. Tampered, truncated, or
// wrong-key input fails with ErrDecryptionFailed, never garbage plaintext.
func (c *Cipher) Decrypt(key, blob []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(blob) < nonceSize {
		return nil, fmt.Errorf("%w: blob too short", common.ErrDecryptionFailed)
	}
	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}

	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}
	return aesgcm, nil
}
