// Package server implements the verification side of the integrity
// protocol: the key ring holding the server's KEM key pairs, the replay
// guard, the per-client rate limiter, the trust store abstraction and
// the verification service that drives a request through the protocol
// stages.
//
// A request moves through a fixed sequence: structural validation,
// replay and timestamp checks, key selection, decapsulation, key
// derivation, payload decryption, payload validation and finally the
// trust decision. The replay checks run before any cryptographic work
// so that replayed or stale requests cost no KEM or AEAD operations.
// Every failure short-circuits to a response carrying one of the fixed
// reason codes; cryptographic failures are indistinguishable from each
// other on the wire.
package server
