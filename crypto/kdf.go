package crypto

import (
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

// DerivedKeySize is the size of the symmetric key derived from a shared
// secret, in bytes.
const DerivedKeySize = 32

// ContextInfo is the domain-separation string both parties feed into key
// derivation. Client and server must use the identical value; a mismatch
// yields different keys and surfaces later as an AEAD tag failure.
const ContextInfo = "AnchorPQ-v1-IntegrityVerification"

// DeriveKey derives a 32-byte symmetric key from a KEM shared secret using
// HKDF-SHA3-256 with the given context info. Derivation is deterministic
// and pure; the hash function is pinned and not configurable.
func DeriveKey(sharedSecret, contextInfo []byte) ([]byte, error) {
	if len(sharedSecret) != SharedSecretSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d",
			ErrInvalidKeySize, len(sharedSecret), SharedSecretSize)
	}

	reader := hkdf.New(sha3.New256, sharedSecret, nil, contextInfo)
	key := make([]byte, DerivedKeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// Zeroize overwrites b with zeros. Per-request secrets (shared secrets,
// derived keys, decrypted plaintext) must be zeroized on every exit path.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
