package crypto

import "errors"

var (
	// ErrUnknownParameterSet is returned when a parameter set name does not
	// map to a supported ML-KEM variant.
	ErrUnknownParameterSet = errors.New("unknown ML-KEM parameter set")

	// ErrKeyFormat is returned when a public or private key does not match
	// the length or structure mandated by the parameter set.
	ErrKeyFormat = errors.New("key does not match parameter set format")

	// ErrEncapsulation is returned on an internal KEM failure during
	// encapsulation.
	ErrEncapsulation = errors.New("encapsulation failed")

	// ErrInvalidCiphertextSize is returned when an encapsulated key has the
	// wrong length for the parameter set. The check runs before the KEM is
	// invoked.
	ErrInvalidCiphertextSize = errors.New("invalid encapsulated key size")

	// ErrAuthenticationFailure covers every decryption-layer anomaly:
	// decapsulation failures, key derivation mismatches surfacing as bad
	// tags, and AEAD tag verification failures. The causes are deliberately
	// not distinguished.
	ErrAuthenticationFailure = errors.New("authentication failure")

	// ErrInvalidKeySize is returned when a symmetric key has the wrong length.
	ErrInvalidKeySize = errors.New("invalid key size")
)
