package server

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anchorpq/anchorpq/crypto"
	"github.com/anchorpq/anchorpq/protocol"
)

const (
	trustedMerkleRoot = "a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2"
	trustedSignerFP   = "fedcba9876543210fedcba9876543210fedcba9876543210fedcba9876543210"
)

// spyStore counts lookups so tests can assert the trust store is never
// consulted on early rejections.
type spyStore struct {
	inner TrustStore
	calls int
}

func (s *spyStore) Lookup(ctx context.Context, merkleRoot, signerFP string) (*Policy, error) {
	s.calls++
	return s.inner.Lookup(ctx, merkleRoot, signerFP)
}

// failingStore simulates a backend outage.
type failingStore struct{}

func (failingStore) Lookup(context.Context, string, string) (*Policy, error) {
	return nil, ErrTrustStoreUnavailable
}

// slowStore blocks until the lookup context expires.
type slowStore struct{}

func (slowStore) Lookup(ctx context.Context, _, _ string) (*Policy, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type serviceFixture struct {
	svc      *VerificationService
	ring     *KeyRing
	exchange crypto.KeyExchange
	trust    *InMemoryTrustStore
	spy      *spyStore
	key      *ServerKey
	now      time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	cfg := protocol.DefaultConfig()
	exchange, err := crypto.NewKeyExchange(cfg.ParameterSet)
	require.NoError(t, err)

	ring := NewKeyRing(exchange, cfg.KeyRotationOverlap)
	now := time.Now()
	key, err := ring.Generate(now)
	require.NoError(t, err)

	trust := NewInMemoryTrustStore()
	trust.Register(trustedMerkleRoot, trustedSignerFP, "1.0.0", protocol.VariantRelease)

	spy := &spyStore{inner: trust}
	svc := NewVerificationService(cfg, exchange, ring, spy, slog.New(slog.DiscardHandler))
	svc.now = func() time.Time { return now }

	return &serviceFixture{
		svc:      svc,
		ring:     ring,
		exchange: exchange,
		trust:    trust,
		spy:      spy,
		key:      key,
		now:      now,
	}
}

func trustedPayload(t *testing.T) *protocol.IntegrityPayload {
	t.Helper()

	payload, err := protocol.NewIntegrityPayload(trustedMerkleRoot, "1.0.0", protocol.VariantRelease, trustedSignerFP)
	require.NoError(t, err)
	return payload
}

// encryptRequest performs the client side of the exchange against the
// given public key.
func encryptRequest(t *testing.T, exchange crypto.KeyExchange, publicKey []byte, keyID string, plaintext []byte, ts time.Time) protocol.VerificationRequest {
	t.Helper()

	ct, sharedSecret, err := exchange.Encapsulate(publicKey)
	require.NoError(t, err)

	derivedKey, err := crypto.DeriveKey(sharedSecret, []byte(crypto.ContextInfo))
	require.NoError(t, err)

	blob, err := crypto.Encrypt(derivedKey, plaintext)
	require.NoError(t, err)

	return protocol.VerificationRequest{
		KeyID:            keyID,
		EncapsulatedKey:  protocol.EncodeBinary(ct),
		EncryptedPayload: protocol.EncodeBinary(blob),
		Timestamp:        ts.UnixMilli(),
	}
}

func (f *serviceFixture) trustedRequest(t *testing.T) protocol.VerificationRequest {
	t.Helper()

	data, err := trustedPayload(t).Marshal()
	require.NoError(t, err)
	return encryptRequest(t, f.exchange, f.key.PublicKey, f.key.ID, data, f.now)
}

func TestVerifyTrustedPayload(t *testing.T) {
	f := newServiceFixture(t)

	result, err := f.svc.Verify(context.Background(), f.trustedRequest(t))
	require.NoError(t, err)
	require.True(t, result.Verified)
	require.Equal(t, protocol.ReasonOK, result.Reason)
}

func TestVerifyUntrustedPayload(t *testing.T) {
	f := newServiceFixture(t)

	payload, err := protocol.NewIntegrityPayload(trustedMerkleRoot, "9.9.9", protocol.VariantDebug, trustedSignerFP)
	require.NoError(t, err)
	data, err := payload.Marshal()
	require.NoError(t, err)

	req := encryptRequest(t, f.exchange, f.key.PublicKey, f.key.ID, data, f.now)
	result, err := f.svc.Verify(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.Verified)
	require.Equal(t, protocol.ReasonTrustDenied, result.Reason)
}

func TestVerifyUnknownKeyID(t *testing.T) {
	f := newServiceFixture(t)

	req := f.trustedRequest(t)
	req.KeyID = "ffffffffffffffff"

	result, err := f.svc.Verify(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.Verified)
	require.Equal(t, protocol.ReasonUnknownKeyID, result.Reason)
	require.Zero(t, f.spy.calls)
}

func TestVerifyExpiredKeyID(t *testing.T) {
	f := newServiceFixture(t)

	req := f.trustedRequest(t)

	// Rotate and move past the overlap. The pinned key is now expired.
	_, err := f.ring.Generate(f.now)
	require.NoError(t, err)
	later := f.now.Add(f.svc.cfg.KeyRotationOverlap + time.Minute)
	f.svc.now = func() time.Time { return later }
	req.Timestamp = later.UnixMilli()

	result, err := f.svc.Verify(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, protocol.ReasonUnknownKeyID, result.Reason)
}

func TestVerifyKeyIDFallback(t *testing.T) {
	f := newServiceFixture(t)

	// Rotate so the request key is no longer current, then omit keyId.
	// Within the overlap the old key is still a candidate.
	_, err := f.ring.Generate(f.now)
	require.NoError(t, err)

	req := f.trustedRequest(t)
	req.KeyID = ""

	result, err := f.svc.Verify(context.Background(), req)
	require.NoError(t, err)
	require.True(t, result.Verified)
	require.Equal(t, protocol.ReasonOK, result.Reason)
}

func TestVerifyFallbackExhausted(t *testing.T) {
	f := newServiceFixture(t)

	// No keyId, encapsulated against a key the ring never held. Every
	// candidate fails, which must look exactly like a bad tag.
	foreignPub, _, err := f.exchange.GenerateKeyPair()
	require.NoError(t, err)
	data, err := trustedPayload(t).Marshal()
	require.NoError(t, err)

	req := encryptRequest(t, f.exchange, foreignPub, "", data, f.now)
	result, err := f.svc.Verify(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.Verified)
	require.Equal(t, protocol.ReasonAuthFailed, result.Reason)
	require.Zero(t, f.spy.calls)
}

func TestVerifyFallbackWithEmptyRing(t *testing.T) {
	f := newServiceFixture(t)

	cfg := protocol.DefaultConfig()
	empty := NewKeyRing(f.exchange, cfg.KeyRotationOverlap)
	svc := NewVerificationService(cfg, f.exchange, empty, f.spy, slog.New(slog.DiscardHandler))
	svc.now = func() time.Time { return f.now }

	req := f.trustedRequest(t)
	req.KeyID = ""

	// Without a pinned key id an empty ring is not an unknown-id case.
	result, err := svc.Verify(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.Verified)
	require.Equal(t, protocol.ReasonAuthFailed, result.Reason)
}

func TestVerifyWrongCiphertextLengthWithoutKeyID(t *testing.T) {
	f := newServiceFixture(t)

	req := f.trustedRequest(t)
	req.KeyID = ""
	ct, err := req.EncapsulatedKeyBytes()
	require.NoError(t, err)
	req.EncapsulatedKey = protocol.EncodeBinary(ct[:len(ct)-1])

	result, err := f.svc.Verify(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, protocol.ReasonProtocolError, result.Reason)
	require.Zero(t, f.spy.calls)
}

func TestVerifyWrongCiphertextLength(t *testing.T) {
	f := newServiceFixture(t)

	req := f.trustedRequest(t)
	ct, err := req.EncapsulatedKeyBytes()
	require.NoError(t, err)
	req.EncapsulatedKey = protocol.EncodeBinary(ct[:len(ct)-1])

	result, err := f.svc.Verify(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.Verified)
	require.Equal(t, protocol.ReasonProtocolError, result.Reason)
	require.Zero(t, f.spy.calls)
}

func TestVerifyTamperedPayload(t *testing.T) {
	f := newServiceFixture(t)

	req := f.trustedRequest(t)
	blob, err := req.EncryptedPayloadBytes()
	require.NoError(t, err)
	blob[len(blob)-1] ^= 0x01
	req.EncryptedPayload = protocol.EncodeBinary(blob)

	result, err := f.svc.Verify(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.Verified)
	require.Equal(t, protocol.ReasonAuthFailed, result.Reason)
	require.Zero(t, f.spy.calls)
}

func TestVerifyDecryptedGarbage(t *testing.T) {
	f := newServiceFixture(t)

	// Correctly encrypted, but not an integrity payload.
	req := encryptRequest(t, f.exchange, f.key.PublicKey, f.key.ID, []byte(`{"hello":"world"}`), f.now)

	result, err := f.svc.Verify(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.Verified)
	require.Equal(t, protocol.ReasonProtocolError, result.Reason)
	require.Zero(t, f.spy.calls)
}

func TestVerifyStaleTimestamp(t *testing.T) {
	f := newServiceFixture(t)

	data, err := trustedPayload(t).Marshal()
	require.NoError(t, err)
	req := encryptRequest(t, f.exchange, f.key.PublicKey, f.key.ID, data, f.now.Add(-time.Hour))

	result, err := f.svc.Verify(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.Verified)
	require.Equal(t, protocol.ReasonReplay, result.Reason)

	// An early rejection costs no trust store lookup.
	require.Zero(t, f.spy.calls)
}

func TestVerifyCiphertextReuse(t *testing.T) {
	f := newServiceFixture(t)

	req := f.trustedRequest(t)

	result, err := f.svc.Verify(context.Background(), req)
	require.NoError(t, err)
	require.True(t, result.Verified)

	// The identical request is rejected without reaching the trust store.
	calls := f.spy.calls
	result, err = f.svc.Verify(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.Verified)
	require.Equal(t, protocol.ReasonReplay, result.Reason)
	require.Equal(t, calls, f.spy.calls)
}

func TestVerifyTrustStoreFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.spy.inner = failingStore{}

	result, err := f.svc.Verify(context.Background(), f.trustedRequest(t))
	require.NoError(t, err)
	require.False(t, result.Verified)
	require.Equal(t, protocol.ReasonTrustStoreUnavailable, result.Reason)
}

func TestVerifyTrustStoreTimeout(t *testing.T) {
	f := newServiceFixture(t)
	f.svc.cfg.TrustStoreTimeout = 10 * time.Millisecond
	f.spy.inner = slowStore{}

	result, err := f.svc.Verify(context.Background(), f.trustedRequest(t))
	require.NoError(t, err)
	require.False(t, result.Verified)
	require.Equal(t, protocol.ReasonTrustStoreUnavailable, result.Reason)
}

func TestVerifyStructurallyInvalidRequests(t *testing.T) {
	f := newServiceFixture(t)

	cases := []struct {
		name string
		req  protocol.VerificationRequest
	}{
		{"empty request", protocol.VerificationRequest{}},
		{"missing payload", protocol.VerificationRequest{
			EncapsulatedKey: protocol.EncodeBinary([]byte("ct")),
			Timestamp:       f.now.UnixMilli(),
		}},
		{"bad base64 ciphertext", protocol.VerificationRequest{
			EncapsulatedKey:  "!!!",
			EncryptedPayload: protocol.EncodeBinary([]byte("blob")),
			Timestamp:        f.now.UnixMilli(),
		}},
		{"bad base64 payload", protocol.VerificationRequest{
			EncapsulatedKey:  protocol.EncodeBinary([]byte("ct")),
			EncryptedPayload: "%%%",
			Timestamp:        f.now.UnixMilli(),
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Verify(context.Background(), tc.req)
			require.Error(t, err)
		})
	}
	require.Zero(t, f.spy.calls)
}

func TestVerifyErrorsNeverRevealCause(t *testing.T) {
	f := newServiceFixture(t)

	// A request built against a foreign key and one with a corrupted tag
	// must be indistinguishable in the response.
	foreignPub, _, err := f.exchange.GenerateKeyPair()
	require.NoError(t, err)
	data, err := trustedPayload(t).Marshal()
	require.NoError(t, err)

	wrongKey := encryptRequest(t, f.exchange, foreignPub, f.key.ID, data, f.now)
	resultWrongKey, err := f.svc.Verify(context.Background(), wrongKey)
	require.NoError(t, err)

	tampered := f.trustedRequest(t)
	blob, err := tampered.EncryptedPayloadBytes()
	require.NoError(t, err)
	blob[0] ^= 0x01
	tampered.EncryptedPayload = protocol.EncodeBinary(blob)
	resultTampered, err := f.svc.Verify(context.Background(), tampered)
	require.NoError(t, err)

	require.Equal(t, resultWrongKey, resultTampered)
	require.Equal(t, protocol.ReasonAuthFailed, resultWrongKey.Reason)
}
