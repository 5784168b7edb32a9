package server

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"
)

var (
	// ErrStaleTimestamp is returned when a request timestamp is older
	// than the replay window.
	ErrStaleTimestamp = errors.New("request timestamp outside replay window")

	// ErrFutureTimestamp is returned when a request timestamp is further
	// ahead of the server clock than the tolerated skew.
	ErrFutureTimestamp = errors.New("request timestamp in the future")

	// ErrReplayedCiphertext is returned when a (keyId, encapsulatedKey)
	// pair has already been consumed.
	ErrReplayedCiphertext = errors.New("encapsulated key already consumed")
)

// ReplayGuard rejects stale, future-dated and replayed requests. Both
// checks run on the clear-text parts of a request, so a rejection costs
// no cryptographic work. A consumed (keyId, encapsulatedKey) pair stays
// rejected for the rest of its window whether or not the first run
// succeeded.
type ReplayGuard struct {
	window time.Duration
	skew   time.Duration

	mu        sync.Mutex
	seen      map[[32]byte]time.Time
	nextSweep time.Time
}

// NewReplayGuard creates a guard with the given acceptance window and
// tolerated forward clock skew.
func NewReplayGuard(window, skew time.Duration) *ReplayGuard {
	return &ReplayGuard{
		window: window,
		skew:   skew,
		seen:   make(map[[32]byte]time.Time),
	}
}

// Check validates the request timestamp against the window and consumes
// the (keyID, encapsulatedKey) pair. The pair is consumed even when the
// caller later fails, so a captured request cannot be retried.
func (g *ReplayGuard) Check(keyID string, encapsulatedKey []byte, timestamp, now time.Time) error {
	if now.Sub(timestamp) > g.window {
		return ErrStaleTimestamp
	}
	if timestamp.Sub(now) > g.skew {
		return ErrFutureTimestamp
	}

	fp := fingerprint(keyID, encapsulatedKey)

	g.mu.Lock()
	defer g.mu.Unlock()

	g.sweep(now)

	if _, dup := g.seen[fp]; dup {
		return ErrReplayedCiphertext
	}
	g.seen[fp] = timestamp
	return nil
}

// sweep evicts entries whose timestamps have aged out of the window.
// Runs at most once per quarter window; entries older than the window
// are already rejected by the timestamp check, so late eviction is
// harmless.
func (g *ReplayGuard) sweep(now time.Time) {
	if now.Before(g.nextSweep) {
		return
	}
	g.nextSweep = now.Add(g.window / 4)

	cutoff := now.Add(-g.window)
	for fp, ts := range g.seen {
		if ts.Before(cutoff) {
			delete(g.seen, fp)
		}
	}
}

func fingerprint(keyID string, encapsulatedKey []byte) [32]byte {
	h := sha3.New256()
	h.Write([]byte(keyID))
	h.Write([]byte{0})
	h.Write(encapsulatedKey)

	var fp [32]byte
	h.Sum(fp[:0])
	return fp
}
