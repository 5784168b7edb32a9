package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anchorpq/anchorpq/crypto"
	"github.com/anchorpq/anchorpq/protocol"
)

func TestFakeKeyExchangeRoundTrip(t *testing.T) {
	fake := NewFakeKeyExchange(crypto.MLKEM768)

	pub, priv, err := fake.GenerateKeyPair()
	require.NoError(t, err)
	require.Len(t, pub, fake.PublicKeySize())

	ct, secret, err := fake.Encapsulate(pub)
	require.NoError(t, err)
	require.Len(t, ct, fake.CiphertextSize())

	recovered, err := fake.Decapsulate(priv, ct)
	require.NoError(t, err)
	require.Equal(t, secret, recovered)
}

func TestFakeKeyExchangeSizeChecks(t *testing.T) {
	fake := NewFakeKeyExchange(crypto.MLKEM768)

	_, _, err := fake.Encapsulate([]byte("short"))
	require.ErrorIs(t, err, crypto.ErrKeyFormat)

	_, priv, err := fake.GenerateKeyPair()
	require.NoError(t, err)

	_, err = fake.Decapsulate(priv, []byte("short"))
	require.ErrorIs(t, err, crypto.ErrInvalidCiphertextSize)
}

func TestFakeKeyExchangeWrongKeyDiverges(t *testing.T) {
	fake := NewFakeKeyExchange(crypto.MLKEM768)

	pub, _, err := fake.GenerateKeyPair()
	require.NoError(t, err)
	_, otherPriv, err := fake.GenerateKeyPair()
	require.NoError(t, err)

	ct, secret, err := fake.Encapsulate(pub)
	require.NoError(t, err)

	diverged, err := fake.Decapsulate(otherPriv, ct)
	require.NoError(t, err)
	require.NotEqual(t, secret, diverged)
}

func TestNewTestPayload(t *testing.T) {
	payload := NewTestPayload()
	require.NoError(t, payload.Validate())

	custom := NewTestPayload(WithVersion("2.0.0"), WithVariant(protocol.VariantBeta))
	require.NoError(t, custom.Validate())
	require.Equal(t, "2.0.0", custom.Version)
	require.Equal(t, protocol.VariantBeta, custom.Variant)

	broken := NewTestPayload(WithMerkleRoot("nope"))
	require.Error(t, broken.Validate())
}

func TestRandomHex(t *testing.T) {
	require.Len(t, RandomHex(32), 64)
	require.NotEqual(t, RandomHex(32), RandomHex(32))
}
