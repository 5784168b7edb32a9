package server

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/anchorpq/anchorpq/crypto"
	"github.com/anchorpq/anchorpq/protocol"
)

// ErrNoCurrentKey is returned when the key ring holds no active key.
var ErrNoCurrentKey = errors.New("key ring has no current key")

// ServerKey is one KEM key pair in the ring. The key id is derived from
// the public key, so a descriptor published under an id never changes.
type ServerKey struct {
	ID         string
	PublicKey  []byte
	privateKey []byte

	ValidFrom time.Time
	// ValidUntil is zero for the current key. A superseded key keeps a
	// bounded window so in-flight clients can finish their exchange.
	ValidUntil time.Time
}

// ValidAt reports whether the key accepts requests at the given time.
func (k *ServerKey) ValidAt(now time.Time) bool {
	if now.Before(k.ValidFrom) {
		return false
	}
	return k.ValidUntil.IsZero() || now.Before(k.ValidUntil)
}

// KeyRing holds the server's KEM key pairs across rotations. Reads
// vastly outnumber rotations, hence the RWMutex. The ring is passed
// explicitly into the service; there is no process-wide key state.
type KeyRing struct {
	exchange crypto.KeyExchange
	overlap  time.Duration

	mu      sync.RWMutex
	keys    map[string]*ServerKey
	order   []string // oldest first
	current string
}

// NewKeyRing creates an empty ring. overlap is how long a superseded
// key remains accepted after rotation.
func NewKeyRing(exchange crypto.KeyExchange, overlap time.Duration) *KeyRing {
	return &KeyRing{
		exchange: exchange,
		overlap:  overlap,
		keys:     make(map[string]*ServerKey),
	}
}

// Generate creates a fresh key pair, makes it the current key and
// bounds the previous current key's validity to now plus the rotation
// overlap.
func (r *KeyRing) Generate(now time.Time) (*ServerKey, error) {
	pub, priv, err := r.exchange.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate ring key: %w", err)
	}

	sum := sha3.Sum256(pub)
	key := &ServerKey{
		ID:         hex.EncodeToString(sum[:])[:16],
		PublicKey:  pub,
		privateKey: priv,
		ValidFrom:  now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.keys[r.current]; ok {
		prev.ValidUntil = now.Add(r.overlap)
	}
	r.keys[key.ID] = key
	r.order = append(r.order, key.ID)
	r.current = key.ID

	return key, nil
}

// Current returns the active key.
func (r *KeyRing) Current() (*ServerKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key, ok := r.keys[r.current]
	return key, ok
}

// Lookup returns the key with the given id regardless of its validity
// window. Callers decide what an expired key means for them.
func (r *KeyRing) Lookup(keyID string) (*ServerKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key, ok := r.keys[keyID]
	return key, ok
}

// Candidates returns the keys a request without a key id may have been
// encapsulated against: every key valid at now whose parameter set
// matches the ciphertext length, newest first.
func (r *KeyRing) Candidates(ctLen int, now time.Time) []*ServerKey {
	if ctLen != r.exchange.CiphertextSize() {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*ServerKey
	for i := len(r.order) - 1; i >= 0; i-- {
		key := r.keys[r.order[i]]
		if key.ValidAt(now) {
			out = append(out, key)
		}
	}
	return out
}

// Descriptor returns the wire descriptor of the current key.
func (r *KeyRing) Descriptor() (protocol.PublicKeyDescriptor, error) {
	key, ok := r.Current()
	if !ok {
		return protocol.PublicKeyDescriptor{}, ErrNoCurrentKey
	}
	return protocol.PublicKeyDescriptor{
		KeyID:        key.ID,
		ParameterSet: r.exchange.ParameterSet().String(),
		PublicKey:    protocol.EncodeBinary(key.PublicKey),
	}, nil
}
