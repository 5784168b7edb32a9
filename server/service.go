package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/anchorpq/anchorpq/crypto"
	"github.com/anchorpq/anchorpq/protocol"
)

// Result is the outcome of one verification run.
type Result struct {
	Verified bool
	Reason   protocol.ReasonCode
}

// VerificationService drives a verification request through the
// protocol stages and produces a trust decision.
type VerificationService struct {
	cfg      *protocol.Config
	exchange crypto.KeyExchange
	keys     *KeyRing
	replay   *ReplayGuard
	trust    TrustStore
	log      *slog.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// NewVerificationService wires the service. The config must have been
// validated by the caller.
func NewVerificationService(cfg *protocol.Config, exchange crypto.KeyExchange, keys *KeyRing, trust TrustStore, log *slog.Logger) *VerificationService {
	return &VerificationService{
		cfg:      cfg,
		exchange: exchange,
		keys:     keys,
		replay:   NewReplayGuard(cfg.ReplayWindow, cfg.ClockSkew),
		trust:    trust,
		log:      log,
		now:      time.Now,
	}
}

// Verify runs the request through the protocol. A non-nil error means
// the request was structurally invalid and never entered the protocol;
// everything else is a completed run described by the Result.
//
// Failure ordering is fixed: replay and timestamp checks come before
// any key selection or cryptographic work, the ciphertext length is
// checked before the KEM runs, and every cryptographic anomaly beyond
// an unknown key id collapses to AUTH_FAILED.
func (s *VerificationService) Verify(ctx context.Context, req protocol.VerificationRequest) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	encapsulatedKey, err := req.EncapsulatedKeyBytes()
	if err != nil {
		return Result{}, err
	}
	blob, err := req.EncryptedPayloadBytes()
	if err != nil {
		return Result{}, err
	}

	now := s.now()
	timestamp := time.UnixMilli(req.Timestamp)

	if err := s.replay.Check(req.KeyID, encapsulatedKey, timestamp, now); err != nil {
		s.log.Info("verification rejected before crypto", "reason", protocol.ReasonReplay, "err", err)
		return Result{Reason: protocol.ReasonReplay}, nil
	}

	if len(encapsulatedKey) != s.exchange.CiphertextSize() {
		s.log.Info("verification rejected before key selection",
			"reason", protocol.ReasonProtocolError, "ciphertextLen", len(encapsulatedKey))
		return Result{Reason: protocol.ReasonProtocolError}, nil
	}

	candidates, reason := s.selectKeys(req.KeyID, now)
	if reason != "" {
		s.log.Info("verification rejected at key selection", "reason", reason, "keyId", req.KeyID)
		return Result{Reason: reason}, nil
	}

	payload, ok := s.decrypt(candidates, encapsulatedKey, blob)
	if !ok {
		s.log.Info("verification failed", "reason", protocol.ReasonAuthFailed)
		return Result{Reason: protocol.ReasonAuthFailed}, nil
	}
	if payload == nil {
		s.log.Info("verification failed", "reason", protocol.ReasonProtocolError)
		return Result{Reason: protocol.ReasonProtocolError}, nil
	}

	return s.decide(ctx, payload), nil
}

// selectKeys resolves which server keys the request may have been
// encapsulated against. An empty reason means selection succeeded.
// Only an explicitly pinned unknown or expired key id is reported as
// UNKNOWN_KEY_ID; a request without a key id that no valid key could
// serve is indistinguishable from a failed decryption.
func (s *VerificationService) selectKeys(keyID string, now time.Time) ([]*ServerKey, protocol.ReasonCode) {
	if keyID != "" {
		key, ok := s.keys.Lookup(keyID)
		if !ok || !key.ValidAt(now) {
			return nil, protocol.ReasonUnknownKeyID
		}
		return []*ServerKey{key}, ""
	}

	candidates := s.keys.Candidates(s.exchange.CiphertextSize(), now)
	if len(candidates) == 0 {
		return nil, protocol.ReasonAuthFailed
	}
	return candidates, ""
}

// decrypt tries each candidate key in turn. ML-KEM rejects a foreign
// ciphertext implicitly, so a wrong candidate surfaces as an AEAD tag
// failure rather than a decapsulation error. All per-request secrets
// are wiped before returning.
func (s *VerificationService) decrypt(candidates []*ServerKey, encapsulatedKey, blob []byte) (*protocol.IntegrityPayload, bool) {
	for _, key := range candidates {
		sharedSecret, err := s.exchange.Decapsulate(key.privateKey, encapsulatedKey)
		if err != nil {
			continue
		}

		derivedKey, err := crypto.DeriveKey(sharedSecret, []byte(s.cfg.ContextInfo))
		crypto.Zeroize(sharedSecret)
		if err != nil {
			continue
		}

		plaintext, err := crypto.Decrypt(derivedKey, blob)
		crypto.Zeroize(derivedKey)
		if err != nil {
			continue
		}

		payload, err := protocol.ParseIntegrityPayload(plaintext)
		crypto.Zeroize(plaintext)
		if err != nil {
			// The blob decrypted but does not carry a valid payload.
			// Not an authentication problem.
			return nil, true
		}
		return payload, true
	}
	return nil, false
}

// decide consults the trust store under the configured timeout.
func (s *VerificationService) decide(ctx context.Context, payload *protocol.IntegrityPayload) Result {
	tctx, cancel := context.WithTimeout(ctx, s.cfg.TrustStoreTimeout)
	defer cancel()

	policy, err := s.trust.Lookup(tctx, payload.MerkleRoot, payload.SignerFingerprint)
	if err != nil {
		s.log.Warn("trust store lookup failed", "err", err)
		return Result{Reason: protocol.ReasonTrustStoreUnavailable}
	}

	if policy == nil || !policy.Allows(payload.Version, payload.Variant) {
		s.log.Info("verification denied",
			"reason", protocol.ReasonTrustDenied,
			"version", payload.Version, "variant", payload.Variant)
		return Result{Reason: protocol.ReasonTrustDenied}
	}

	s.log.Info("verification succeeded",
		"version", payload.Version, "variant", payload.Variant)
	return Result{Verified: true, Reason: protocol.ReasonOK}
}
