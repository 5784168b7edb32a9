// Package crypto provides the cryptographic primitives for the AnchorPQ
// integrity verification protocol.
//
// This package implements the three layers of the session protocol:
//
//   - Key encapsulation (ML-KEM) for post-quantum shared secret agreement
//   - HKDF-SHA3-256 key derivation with domain separation
//   - AES-256-GCM authenticated encryption of the integrity payload
//
// The KeyExchange interface is the only entry point to the KEM; production
// code always goes through NewKeyExchange, which selects a real ML-KEM
// parameter set. Deterministic test doubles live in the testutil package
// and are never wired into production paths.
//
// # Key Derivation
//
// Both parties derive the symmetric key with the same hash (SHA3-256) and
// the same context string. The hash is pinned at compile time: there is no
// configuration knob that could put client and server on different hashes.
// A context mismatch is not detectable at derivation time and surfaces as
// an AEAD authentication failure.
//
// # Secret Hygiene
//
// Shared secrets and derived keys are single-use and scoped to one
// request. Callers are expected to Zeroize them on every exit path.
package crypto
