package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/anchorpq/anchorpq/crypto"
	"github.com/anchorpq/anchorpq/protocol"
)

// =====================================
// Fake key exchange
// =====================================

const (
	fakePublicKeySize  = 32
	fakeCiphertextSize = 32
)

// FakeKeyExchange implements crypto.KeyExchange without any lattice
// math: the public key is a hash of the private key and the shared
// secret is a hash of public key and ciphertext. Both sides reach the
// same secret, key pairs are cheap, and nothing here is secure.
type FakeKeyExchange struct {
	Set crypto.ParameterSet
}

// NewFakeKeyExchange creates a fake exchange reporting the given
// parameter set.
func NewFakeKeyExchange(set crypto.ParameterSet) *FakeKeyExchange {
	return &FakeKeyExchange{Set: set}
}

func (f *FakeKeyExchange) ParameterSet() crypto.ParameterSet { return f.Set }

func (f *FakeKeyExchange) PublicKeySize() int { return fakePublicKeySize }

func (f *FakeKeyExchange) CiphertextSize() int { return fakeCiphertextSize }

func (f *FakeKeyExchange) GenerateKeyPair() ([]byte, []byte, error) {
	priv := make([]byte, 32)
	if _, err := rand.Read(priv); err != nil {
		return nil, nil, err
	}
	return f.publicFor(priv), priv, nil
}

func (f *FakeKeyExchange) Encapsulate(publicKey []byte) ([]byte, []byte, error) {
	if len(publicKey) != fakePublicKeySize {
		return nil, nil, fmt.Errorf("%w: got %d bytes, want %d",
			crypto.ErrKeyFormat, len(publicKey), fakePublicKeySize)
	}

	ciphertext := make([]byte, fakeCiphertextSize)
	if _, err := rand.Read(ciphertext); err != nil {
		return nil, nil, err
	}
	return ciphertext, f.sharedSecret(publicKey, ciphertext), nil
}

func (f *FakeKeyExchange) Decapsulate(privateKey, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) != fakeCiphertextSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d",
			crypto.ErrInvalidCiphertextSize, len(ciphertext), fakeCiphertextSize)
	}
	return f.sharedSecret(f.publicFor(privateKey), ciphertext), nil
}

func (f *FakeKeyExchange) publicFor(privateKey []byte) []byte {
	h := sha3.New256()
	h.Write([]byte("fake-kem-public"))
	h.Write(privateKey)
	return h.Sum(nil)
}

func (f *FakeKeyExchange) sharedSecret(publicKey, ciphertext []byte) []byte {
	h := sha3.New256()
	h.Write([]byte("fake-kem-secret"))
	h.Write(publicKey)
	h.Write(ciphertext)
	return h.Sum(nil)
}

// =====================================
// Payload generators
// =====================================

// PayloadOption is a function that modifies an IntegrityPayload.
type PayloadOption func(*protocol.IntegrityPayload)

// WithMerkleRoot sets the merkle root.
func WithMerkleRoot(root string) PayloadOption {
	return func(p *protocol.IntegrityPayload) {
		p.MerkleRoot = root
	}
}

// WithVersion sets the version.
func WithVersion(version string) PayloadOption {
	return func(p *protocol.IntegrityPayload) {
		p.Version = version
	}
}

// WithVariant sets the variant.
func WithVariant(variant protocol.Variant) PayloadOption {
	return func(p *protocol.IntegrityPayload) {
		p.Variant = variant
	}
}

// WithSignerFingerprint sets the signer fingerprint.
func WithSignerFingerprint(fp string) PayloadOption {
	return func(p *protocol.IntegrityPayload) {
		p.SignerFingerprint = fp
	}
}

// NewTestPayload creates a valid payload that can be customized using
// options. Options may produce an invalid payload on purpose; callers
// testing the happy path should pass none.
func NewTestPayload(options ...PayloadOption) *protocol.IntegrityPayload {
	payload := &protocol.IntegrityPayload{
		MerkleRoot:        "a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2",
		Version:           "1.0.0",
		Variant:           protocol.VariantRelease,
		SignerFingerprint: "fedcba9876543210fedcba9876543210fedcba9876543210fedcba9876543210",
	}

	for _, option := range options {
		option(payload)
	}

	return payload
}

// RandomHex returns n random bytes hex-encoded, 2n characters.
func RandomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
