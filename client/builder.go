package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/anchorpq/anchorpq/crypto"
	"github.com/anchorpq/anchorpq/protocol"
)

// ErrParameterSetMismatch is returned when the server's published key
// belongs to a different parameter set than the builder is configured
// for.
var ErrParameterSetMismatch = errors.New("descriptor parameter set does not match")

// RequestBuilder turns an integrity payload into a wire request. The
// payload is validated before any cryptographic or network work so a
// malformed payload fails fast and costs nothing.
type RequestBuilder struct {
	exchange    crypto.KeyExchange
	contextInfo []byte

	// now is replaceable in tests.
	now func() time.Time
}

// NewRequestBuilder creates a builder for the given exchange and HKDF
// context info.
func NewRequestBuilder(exchange crypto.KeyExchange, contextInfo string) *RequestBuilder {
	return &RequestBuilder{
		exchange:    exchange,
		contextInfo: []byte(contextInfo),
		now:         time.Now,
	}
}

// Build validates the payload, encapsulates against the descriptor's
// public key and encrypts the payload. Each call produces a fresh
// encapsulation; requests are single-use by design.
func (b *RequestBuilder) Build(descriptor protocol.PublicKeyDescriptor, payload *protocol.IntegrityPayload) (protocol.VerificationRequest, error) {
	if err := payload.Validate(); err != nil {
		return protocol.VerificationRequest{}, err
	}

	set, err := crypto.ParseParameterSet(descriptor.ParameterSet)
	if err != nil {
		return protocol.VerificationRequest{}, err
	}
	if set != b.exchange.ParameterSet() {
		return protocol.VerificationRequest{}, fmt.Errorf("%w: descriptor has %s, builder uses %s",
			ErrParameterSetMismatch, set, b.exchange.ParameterSet())
	}

	publicKey, err := descriptor.PublicKeyBytes()
	if err != nil {
		return protocol.VerificationRequest{}, err
	}

	ciphertext, sharedSecret, err := b.exchange.Encapsulate(publicKey)
	if err != nil {
		return protocol.VerificationRequest{}, fmt.Errorf("encapsulate: %w", err)
	}
	defer crypto.Zeroize(sharedSecret)

	derivedKey, err := crypto.DeriveKey(sharedSecret, b.contextInfo)
	if err != nil {
		return protocol.VerificationRequest{}, fmt.Errorf("derive key: %w", err)
	}
	defer crypto.Zeroize(derivedKey)

	plaintext, err := payload.Marshal()
	if err != nil {
		return protocol.VerificationRequest{}, fmt.Errorf("marshal payload: %w", err)
	}

	blob, err := crypto.Encrypt(derivedKey, plaintext)
	if err != nil {
		return protocol.VerificationRequest{}, fmt.Errorf("encrypt payload: %w", err)
	}

	return protocol.VerificationRequest{
		KeyID:            descriptor.KeyID,
		EncapsulatedKey:  protocol.EncodeBinary(ciphertext),
		EncryptedPayload: protocol.EncodeBinary(blob),
		Timestamp:        b.now().UnixMilli(),
	}, nil
}
