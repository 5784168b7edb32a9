package server

import (
	"context"
	"errors"
	"sync"

	"github.com/anchorpq/anchorpq/protocol"
)

// ErrTrustStoreUnavailable wraps infrastructure failures of a trust
// store backend. Lookup errors matching it (or a context deadline) are
// reported as TRUST_STORE_UNAVAILABLE rather than a trust denial.
var ErrTrustStoreUnavailable = errors.New("trust store unavailable")

// Policy is the set of version and variant claims a trusted artifact
// identity may make.
type Policy struct {
	allowed map[claim]struct{}
}

type claim struct {
	version string
	variant protocol.Variant
}

// NewPolicy returns an empty policy.
func NewPolicy() *Policy {
	return &Policy{allowed: make(map[claim]struct{})}
}

// Allow adds a version/variant claim to the policy.
func (p *Policy) Allow(version string, variant protocol.Variant) {
	p.allowed[claim{version, variant}] = struct{}{}
}

// Allows reports whether the policy permits the claim.
func (p *Policy) Allows(version string, variant protocol.Variant) bool {
	_, ok := p.allowed[claim{version, variant}]
	return ok
}

// TrustStore answers whether an artifact identity is trusted.
type TrustStore interface {
	// Lookup returns the policy for the (merkleRoot, signerFingerprint)
	// identity, or nil when the identity is unknown. An unknown identity
	// is not an error; errors mean the store could not answer at all.
	Lookup(ctx context.Context, merkleRoot, signerFingerprint string) (*Policy, error)
}

// TrustRegistrar is implemented by trust stores that accept new records
// while the server runs, e.g. from a release pipeline posting to the
// admin endpoint.
type TrustRegistrar interface {
	// RegisterRecord validates and persists one version/variant claim for
	// the identity.
	RegisterRecord(ctx context.Context, merkleRoot, signerFingerprint, version string, variant protocol.Variant) error
}

// InMemoryTrustStore is a map-backed TrustStore for tests, demos and
// single-process deployments.
type InMemoryTrustStore struct {
	mu       sync.RWMutex
	policies map[identity]*Policy
}

type identity struct {
	merkleRoot        string
	signerFingerprint string
}

// NewInMemoryTrustStore creates an empty store.
func NewInMemoryTrustStore() *InMemoryTrustStore {
	return &InMemoryTrustStore{policies: make(map[identity]*Policy)}
}

// Register records that the identity may claim the given version and
// variant.
func (s *InMemoryTrustStore) Register(merkleRoot, signerFingerprint, version string, variant protocol.Variant) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := identity{merkleRoot, signerFingerprint}
	policy, ok := s.policies[id]
	if !ok {
		policy = NewPolicy()
		s.policies[id] = policy
	}
	policy.Allow(version, variant)
}

// RegisterRecord implements TrustRegistrar. The record fields are
// validated and normalized the same way a decrypted payload is, so a
// registered identity matches the form lookups arrive in.
func (s *InMemoryTrustStore) RegisterRecord(ctx context.Context, merkleRoot, signerFingerprint, version string, variant protocol.Variant) error {
	p, err := protocol.NewIntegrityPayload(merkleRoot, version, variant, signerFingerprint)
	if err != nil {
		return err
	}
	s.Register(p.MerkleRoot, p.SignerFingerprint, p.Version, p.Variant)
	return nil
}

// Lookup implements TrustStore.
func (s *InMemoryTrustStore) Lookup(ctx context.Context, merkleRoot, signerFingerprint string) (*Policy, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.policies[identity{merkleRoot, signerFingerprint}], nil
}
