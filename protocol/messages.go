package protocol

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// ReasonCode explains a verification outcome. The vocabulary is fixed;
// every cryptographic-layer failure collapses to ReasonAuthFailed so the
// response never acts as a decryption oracle.
type ReasonCode string

const (
	ReasonOK                    ReasonCode = "OK"
	ReasonAuthFailed            ReasonCode = "AUTH_FAILED"
	ReasonProtocolError         ReasonCode = "PROTOCOL_ERROR"
	ReasonUnknownKeyID          ReasonCode = "UNKNOWN_KEY_ID"
	ReasonReplay                ReasonCode = "REPLAY"
	ReasonTrustDenied           ReasonCode = "TRUST_DENIED"
	ReasonTrustStoreUnavailable ReasonCode = "TRUST_STORE_UNAVAILABLE"
)

// ErrMissingField is returned when a wire request lacks a required field.
var ErrMissingField = errors.New("missing required field")

// PublicKeyDescriptor is the server's published KEM public key. Once
// issued under a keyId it never changes.
type PublicKeyDescriptor struct {
	// KeyID identifies the key pair in the server's key ring.
	KeyID string `json:"keyId"`

	// ParameterSet names the ML-KEM parameter set the key belongs to.
	ParameterSet string `json:"parameterSet"`

	// PublicKey is the base64-encoded public key bytes.
	PublicKey string `json:"publicKey"`
}

// PublicKeyBytes decodes the descriptor's public key.
func (d PublicKeyDescriptor) PublicKeyBytes() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(d.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	return raw, nil
}

// VerificationRequest is the wire form of a verification attempt.
// EncapsulatedKey and EncryptedPayload are base64-encoded; Timestamp is
// clear-text milliseconds since epoch so replay checks can run before
// any cryptographic work.
type VerificationRequest struct {
	// KeyID optionally pins the server key the client encapsulated
	// against. When empty the server falls back to trying keys within
	// the rotation window.
	KeyID string `json:"keyId,omitempty"`

	// EncapsulatedKey is the base64-encoded KEM ciphertext.
	EncapsulatedKey string `json:"encapsulatedKey"`

	// EncryptedPayload is the base64-encoded nonce||ciphertext||tag blob.
	EncryptedPayload string `json:"encryptedPayload"`

	// Timestamp is the client clock in milliseconds since epoch.
	Timestamp int64 `json:"timestamp"`
}

// Validate checks that the required wire fields are present. It does not
// touch any cryptographic material.
func (r VerificationRequest) Validate() error {
	if r.EncapsulatedKey == "" {
		return fmt.Errorf("%w: encapsulatedKey", ErrMissingField)
	}
	if r.EncryptedPayload == "" {
		return fmt.Errorf("%w: encryptedPayload", ErrMissingField)
	}
	if r.Timestamp <= 0 {
		return fmt.Errorf("%w: timestamp", ErrMissingField)
	}
	return nil
}

// EncapsulatedKeyBytes decodes the KEM ciphertext.
func (r VerificationRequest) EncapsulatedKeyBytes() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(r.EncapsulatedKey)
	if err != nil {
		return nil, fmt.Errorf("decode encapsulated key: %w", err)
	}
	return raw, nil
}

// EncryptedPayloadBytes decodes the AEAD blob.
func (r VerificationRequest) EncryptedPayloadBytes() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(r.EncryptedPayload)
	if err != nil {
		return nil, fmt.Errorf("decode encrypted payload: %w", err)
	}
	return raw, nil
}

// VerificationResponse is the server's trust decision.
type VerificationResponse struct {
	// Verified is true only when every protocol stage succeeded and the
	// trust store affirmatively allows the payload tuple.
	Verified bool `json:"verified"`

	// ReasonCode explains the outcome using the fixed vocabulary.
	ReasonCode ReasonCode `json:"reasonCode"`

	// ServerTime is the server clock in milliseconds since epoch.
	ServerTime int64 `json:"serverTime"`
}

// EncodeBinary encodes raw bytes for a wire field.
func EncodeBinary(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}
