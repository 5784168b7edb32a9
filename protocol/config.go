package protocol

import (
	"errors"
	"fmt"
	"time"

	"github.com/anchorpq/anchorpq/crypto"
)

// Config provides the protocol parameters shared by client and server.
type Config struct {
	// ParameterSet is the ML-KEM parameter set in use.
	ParameterSet crypto.ParameterSet `json:"parameter_set"`

	// ContextInfo is the HKDF domain-separation string. Both parties must
	// use the identical value.
	ContextInfo string `json:"context_info"`

	// ReplayWindow is the maximum accepted age of a request timestamp.
	ReplayWindow time.Duration `json:"replay_window,string"`

	// ClockSkew is the tolerated forward drift of a client clock.
	ClockSkew time.Duration `json:"clock_skew,string"`

	// TrustStoreTimeout bounds a single trust store lookup.
	TrustStoreTimeout time.Duration `json:"trust_store_timeout,string"`

	// KeyRotationOverlap is how long a superseded server key remains
	// accepted after a new key becomes current.
	KeyRotationOverlap time.Duration `json:"key_rotation_overlap,string"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	return &Config{
		ParameterSet:       crypto.MLKEM768,
		ContextInfo:        crypto.ContextInfo,
		ReplayWindow:       5 * time.Minute,
		ClockSkew:          30 * time.Second,
		TrustStoreTimeout:  3 * time.Second,
		KeyRotationOverlap: 24 * time.Hour,
	}
}

// Validate rejects configurations that would silently weaken the
// protocol. Misconfigurations are caught here, at startup, rather than
// surfacing as runtime decryption failures.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config cannot be nil")
	}
	if _, err := crypto.ParseParameterSet(string(c.ParameterSet)); err != nil {
		return err
	}
	if c.ContextInfo == "" {
		return errors.New("context info must not be empty")
	}
	if c.ReplayWindow <= 0 {
		return fmt.Errorf("replay window must be positive, got %s", c.ReplayWindow)
	}
	if c.ClockSkew < 0 {
		return fmt.Errorf("clock skew must not be negative, got %s", c.ClockSkew)
	}
	if c.TrustStoreTimeout <= 0 {
		return fmt.Errorf("trust store timeout must be positive, got %s", c.TrustStoreTimeout)
	}
	if c.KeyRotationOverlap < 0 {
		return fmt.Errorf("key rotation overlap must not be negative, got %s", c.KeyRotationOverlap)
	}
	return nil
}
