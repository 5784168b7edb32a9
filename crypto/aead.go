package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

const (
	// AEADNonceSize is the AES-GCM nonce size in bytes.
	AEADNonceSize = 12
	// AEADTagSize is the AES-GCM authentication tag size in bytes.
	AEADTagSize = 16
)

// Encrypt encrypts plaintext under key using AES-256-GCM.
// The returned blob is nonce (12 bytes) || ciphertext || tag (16 bytes).
// A fresh random nonce is drawn from crypto/rand on every call; nonces are
// never derived from counters, so reuse under the same key cannot happen
// short of a broken random source.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, AEADNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	return append(nonce, ciphertext...), nil
}

// Decrypt decrypts a nonce || ciphertext || tag blob produced by Encrypt.
// Any failure, including a blob shorter than the nonce+tag minimum, is
// reported as ErrAuthenticationFailure; no partial plaintext is ever
// returned.
func Decrypt(key, blob []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(blob) < AEADNonceSize+AEADTagSize {
		return nil, ErrAuthenticationFailure
	}

	nonce := blob[:AEADNonceSize]
	ciphertext := blob[AEADNonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthenticationFailure
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != DerivedKeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d",
			ErrInvalidKeySize, len(key), DerivedKeySize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
