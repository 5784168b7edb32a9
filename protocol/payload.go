package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Variant is the build variant an artifact was produced as.
type Variant string

const (
	VariantRelease Variant = "release"
	VariantDebug   Variant = "debug"
	VariantBeta    Variant = "beta"
)

// Valid reports whether the variant is in the allowed set.
func (v Variant) Valid() bool {
	switch v {
	case VariantRelease, VariantDebug, VariantBeta:
		return true
	}
	return false
}

// fingerprintHexLen is the length of the merkle root and signer
// fingerprint fields: a hex-encoded 256-bit hash.
const fingerprintHexLen = 64

var (
	// ErrValidation is the base error for structurally invalid payloads.
	ErrValidation = errors.New("invalid integrity payload")
)

// IntegrityPayload is the artifact fingerprint a client asks the server
// to verify. It is validated before encryption on the client and again
// after decryption on the server; ad-hoc field access on unvalidated
// data is never trusted.
type IntegrityPayload struct {
	// MerkleRoot is the artifact content tree root, 64 hex characters.
	MerkleRoot string `json:"merkleRoot"`

	// Version is the artifact version string.
	Version string `json:"version"`

	// Variant is the build variant, from the fixed allowed set.
	Variant Variant `json:"variant"`

	// SignerFingerprint identifies the signing key, 64 hex characters.
	SignerFingerprint string `json:"signerFingerprint"`
}

// NewIntegrityPayload constructs a validated payload. Hex fields are
// normalized to lower case so equal fingerprints compare equal
// regardless of input casing.
func NewIntegrityPayload(merkleRoot, version string, variant Variant, signerFingerprint string) (*IntegrityPayload, error) {
	p := &IntegrityPayload{
		MerkleRoot:        strings.ToLower(merkleRoot),
		Version:           version,
		Variant:           variant,
		SignerFingerprint: strings.ToLower(signerFingerprint),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the structural rules: fixed-length hex fingerprints,
// non-empty version, variant in the allowed set.
func (p IntegrityPayload) Validate() error {
	if err := validateHexField("merkleRoot", p.MerkleRoot); err != nil {
		return err
	}
	if p.Version == "" {
		return fmt.Errorf("%w: version must not be empty", ErrValidation)
	}
	if !p.Variant.Valid() {
		return fmt.Errorf("%w: unknown variant %q", ErrValidation, p.Variant)
	}
	return validateHexField("signerFingerprint", p.SignerFingerprint)
}

// Marshal serializes the payload for encryption.
func (p IntegrityPayload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// ParseIntegrityPayload deserializes and validates a decrypted payload.
// This is the server-side mirror of the client's pre-encryption check.
func ParseIntegrityPayload(data []byte) (*IntegrityPayload, error) {
	var p IntegrityPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	p.MerkleRoot = strings.ToLower(p.MerkleRoot)
	p.SignerFingerprint = strings.ToLower(p.SignerFingerprint)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func validateHexField(name, value string) error {
	if len(value) != fingerprintHexLen {
		return fmt.Errorf("%w: %s must be %d hex characters, got %d",
			ErrValidation, name, fingerprintHexLen, len(value))
	}
	for _, c := range value {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("%w: %s contains non-hex character %q", ErrValidation, name, c)
		}
	}
	return nil
}
