package crypto

import (
	"fmt"
	"strings"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/schemes"
)

// SharedSecretSize is the size of the ML-KEM shared secret in bytes.
// It is identical for all supported parameter sets.
const SharedSecretSize = 32

// ParameterSet identifies an ML-KEM parameter set.
type ParameterSet string

const (
	// MLKEM512 is ML-KEM-512 (NIST security category 1).
	MLKEM512 ParameterSet = "ML-KEM-512"
	// MLKEM768 is ML-KEM-768 (NIST security category 3). This is the
	// default parameter set for the verification protocol.
	MLKEM768 ParameterSet = "ML-KEM-768"
	// MLKEM1024 is ML-KEM-1024 (NIST security category 5).
	MLKEM1024 ParameterSet = "ML-KEM-1024"
)

// String returns the canonical parameter set name.
func (ps ParameterSet) String() string { return string(ps) }

// ParseParameterSet maps a parameter set name to a ParameterSet. Besides
// the canonical names it accepts the security-level aliases used on the
// wire (level1, level3, level5) and the legacy Kyber names.
func ParseParameterSet(name string) (ParameterSet, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "ML-KEM-512", "KYBER512", "LEVEL1":
		return MLKEM512, nil
	case "ML-KEM-768", "KYBER768", "LEVEL3":
		return MLKEM768, nil
	case "ML-KEM-1024", "KYBER1024", "LEVEL5":
		return MLKEM1024, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownParameterSet, name)
	}
}

// KeyExchange is the capability interface over the post-quantum KEM.
// Implementations must be safe for concurrent use: they hold no per-request
// state, only the parameter set.
type KeyExchange interface {
	// ParameterSet returns the parameter set this exchange operates with.
	ParameterSet() ParameterSet

	// PublicKeySize returns the exact public key length in bytes.
	PublicKeySize() int

	// CiphertextSize returns the exact encapsulated key length in bytes.
	CiphertextSize() int

	// GenerateKeyPair produces a fresh key pair in serialized form.
	GenerateKeyPair() (publicKey, privateKey []byte, err error)

	// Encapsulate produces an encapsulated key and a 32-byte shared secret
	// for the given public key. Fails with ErrKeyFormat if the public key
	// does not match the parameter set, and ErrEncapsulation on internal
	// KEM failure.
	Encapsulate(publicKey []byte) (ciphertext, sharedSecret []byte, err error)

	// Decapsulate recovers the shared secret from an encapsulated key.
	// Fails with ErrInvalidCiphertextSize before invoking the KEM if the
	// ciphertext length is wrong, ErrKeyFormat for a malformed private key,
	// and ErrAuthenticationFailure on any other anomaly.
	Decapsulate(privateKey, ciphertext []byte) (sharedSecret []byte, err error)
}

// mlkemExchange implements KeyExchange on top of circl's ML-KEM schemes.
type mlkemExchange struct {
	set    ParameterSet
	scheme kem.Scheme
}

// NewKeyExchange returns the production KeyExchange for the given
// parameter set.
func NewKeyExchange(set ParameterSet) (KeyExchange, error) {
	scheme := schemes.ByName(string(set))
	if scheme == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownParameterSet, set)
	}
	return &mlkemExchange{set: set, scheme: scheme}, nil
}

func (x *mlkemExchange) ParameterSet() ParameterSet { return x.set }

func (x *mlkemExchange) PublicKeySize() int { return x.scheme.PublicKeySize() }

func (x *mlkemExchange) CiphertextSize() int { return x.scheme.CiphertextSize() }

func (x *mlkemExchange) GenerateKeyPair() ([]byte, []byte, error) {
	pub, priv, err := x.scheme.GenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("generate %s key pair: %w", x.set, err)
	}

	// MarshalBinary never fails for keys produced by GenerateKeyPair.
	pubBytes, _ := pub.MarshalBinary()
	privBytes, _ := priv.MarshalBinary()
	return pubBytes, privBytes, nil
}

func (x *mlkemExchange) Encapsulate(publicKey []byte) ([]byte, []byte, error) {
	if len(publicKey) != x.scheme.PublicKeySize() {
		return nil, nil, fmt.Errorf("%w: got %d bytes, want %d",
			ErrKeyFormat, len(publicKey), x.scheme.PublicKeySize())
	}

	pub, err := x.scheme.UnmarshalBinaryPublicKey(publicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrKeyFormat, err)
	}

	ciphertext, sharedSecret, err := x.scheme.Encapsulate(pub)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEncapsulation, err)
	}
	return ciphertext, sharedSecret, nil
}

func (x *mlkemExchange) Decapsulate(privateKey, ciphertext []byte) ([]byte, error) {
	// Length mismatches are rejected before the KEM runs.
	if len(ciphertext) != x.scheme.CiphertextSize() {
		return nil, fmt.Errorf("%w: got %d bytes, want %d",
			ErrInvalidCiphertextSize, len(ciphertext), x.scheme.CiphertextSize())
	}

	priv, err := x.scheme.UnmarshalBinaryPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFormat, err)
	}

	sharedSecret, err := x.scheme.Decapsulate(priv, ciphertext)
	if err != nil {
		return nil, ErrAuthenticationFailure
	}
	return sharedSecret, nil
}
