package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anchorpq/anchorpq/crypto"
	"github.com/anchorpq/anchorpq/protocol"
)

const (
	testMerkleRoot = "a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2"
	testSignerFP   = "fedcba9876543210fedcba9876543210fedcba9876543210fedcba9876543210"
)

func testDescriptor(t *testing.T, exchange crypto.KeyExchange) (protocol.PublicKeyDescriptor, []byte) {
	t.Helper()

	pub, priv, err := exchange.GenerateKeyPair()
	require.NoError(t, err)

	return protocol.PublicKeyDescriptor{
		KeyID:        "test-key",
		ParameterSet: exchange.ParameterSet().String(),
		PublicKey:    protocol.EncodeBinary(pub),
	}, priv
}

func TestBuildProducesDecryptableRequest(t *testing.T) {
	exchange, err := crypto.NewKeyExchange(crypto.MLKEM768)
	require.NoError(t, err)
	descriptor, priv := testDescriptor(t, exchange)

	payload, err := protocol.NewIntegrityPayload(testMerkleRoot, "1.0.0", protocol.VariantRelease, testSignerFP)
	require.NoError(t, err)

	builder := NewRequestBuilder(exchange, crypto.ContextInfo)
	req, err := builder.Build(descriptor, payload)
	require.NoError(t, err)
	require.Equal(t, "test-key", req.KeyID)
	require.NotZero(t, req.Timestamp)

	// The server side of the exchange recovers the payload.
	ct, err := req.EncapsulatedKeyBytes()
	require.NoError(t, err)
	sharedSecret, err := exchange.Decapsulate(priv, ct)
	require.NoError(t, err)
	derivedKey, err := crypto.DeriveKey(sharedSecret, []byte(crypto.ContextInfo))
	require.NoError(t, err)

	blob, err := req.EncryptedPayloadBytes()
	require.NoError(t, err)
	plaintext, err := crypto.Decrypt(derivedKey, blob)
	require.NoError(t, err)

	got, err := protocol.ParseIntegrityPayload(plaintext)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestBuildFailsFastOnInvalidPayload(t *testing.T) {
	exchange, err := crypto.NewKeyExchange(crypto.MLKEM768)
	require.NoError(t, err)
	descriptor, _ := testDescriptor(t, exchange)

	builder := NewRequestBuilder(exchange, crypto.ContextInfo)

	invalid := &protocol.IntegrityPayload{MerkleRoot: "tooshort", Version: "1.0.0",
		Variant: protocol.VariantRelease, SignerFingerprint: testSignerFP}
	_, err = builder.Build(descriptor, invalid)
	require.ErrorIs(t, err, protocol.ErrValidation)
}

func TestBuildRejectsParameterSetMismatch(t *testing.T) {
	exchange, err := crypto.NewKeyExchange(crypto.MLKEM768)
	require.NoError(t, err)
	descriptor, _ := testDescriptor(t, exchange)
	descriptor.ParameterSet = crypto.MLKEM1024.String()

	payload, err := protocol.NewIntegrityPayload(testMerkleRoot, "1.0.0", protocol.VariantRelease, testSignerFP)
	require.NoError(t, err)

	builder := NewRequestBuilder(exchange, crypto.ContextInfo)
	_, err = builder.Build(descriptor, payload)
	require.ErrorIs(t, err, ErrParameterSetMismatch)
}

func TestBuildUsesFreshEncapsulation(t *testing.T) {
	exchange, err := crypto.NewKeyExchange(crypto.MLKEM768)
	require.NoError(t, err)
	descriptor, _ := testDescriptor(t, exchange)

	payload, err := protocol.NewIntegrityPayload(testMerkleRoot, "1.0.0", protocol.VariantRelease, testSignerFP)
	require.NoError(t, err)

	builder := NewRequestBuilder(exchange, crypto.ContextInfo)
	first, err := builder.Build(descriptor, payload)
	require.NoError(t, err)
	second, err := builder.Build(descriptor, payload)
	require.NoError(t, err)

	require.NotEqual(t, first.EncapsulatedKey, second.EncapsulatedKey)
	require.NotEqual(t, first.EncryptedPayload, second.EncryptedPayload)
}

func TestBuildAcceptsAliasParameterSetName(t *testing.T) {
	exchange, err := crypto.NewKeyExchange(crypto.MLKEM768)
	require.NoError(t, err)
	descriptor, _ := testDescriptor(t, exchange)
	descriptor.ParameterSet = "level3"

	payload, err := protocol.NewIntegrityPayload(testMerkleRoot, "1.0.0", protocol.VariantRelease, testSignerFP)
	require.NoError(t, err)

	builder := NewRequestBuilder(exchange, crypto.ContextInfo)
	builder.now = func() time.Time { return time.UnixMilli(1700000000000) }

	req, err := builder.Build(descriptor, payload)
	require.NoError(t, err)
	require.Equal(t, int64(1700000000000), req.Timestamp)
}
