package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/anchorpq/anchorpq/crypto"
	"github.com/anchorpq/anchorpq/protocol"
)

// descriptorTTL matches the Cache-Control max-age the server publishes
// on its public key endpoint.
const descriptorTTL = time.Hour

// Client submits integrity payloads to a verification server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	builder    *RequestBuilder
	log        *slog.Logger

	mu         sync.Mutex
	descriptor protocol.PublicKeyDescriptor
	fetchedAt  time.Time
}

// NewClient creates a client for the server at baseURL using the given
// protocol configuration.
func NewClient(baseURL string, cfg *protocol.Config, log *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	exchange, err := crypto.NewKeyExchange(cfg.ParameterSet)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		builder:    NewRequestBuilder(exchange, cfg.ContextInfo),
		log:        log,
	}, nil
}

// FetchPublicKey returns the server's current key descriptor. The
// descriptor is cached; a cached copy is served until its TTL expires.
func (c *Client) FetchPublicKey(ctx context.Context) (protocol.PublicKeyDescriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.descriptor.KeyID != "" && time.Since(c.fetchedAt) < descriptorTTL {
		return c.descriptor, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/public-key", nil)
	if err != nil {
		return protocol.PublicKeyDescriptor{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return protocol.PublicKeyDescriptor{}, fmt.Errorf("fetch public key: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return protocol.PublicKeyDescriptor{}, fmt.Errorf("fetch public key: status %d: %s", resp.StatusCode, body)
	}

	var descriptor protocol.PublicKeyDescriptor
	if err := json.NewDecoder(resp.Body).Decode(&descriptor); err != nil {
		return protocol.PublicKeyDescriptor{}, fmt.Errorf("decode public key descriptor: %w", err)
	}

	c.descriptor = descriptor
	c.fetchedAt = time.Now()
	c.log.Debug("fetched verification key", "keyId", descriptor.KeyID, "parameterSet", descriptor.ParameterSet)

	return descriptor, nil
}

// Verify runs one full verification exchange for the payload and
// returns the server's decision. Each call encapsulates a fresh shared
// secret, so Verify may be called again after any failure.
func (c *Client) Verify(ctx context.Context, payload *protocol.IntegrityPayload) (protocol.VerificationResponse, error) {
	descriptor, err := c.FetchPublicKey(ctx)
	if err != nil {
		return protocol.VerificationResponse{}, err
	}

	wireReq, err := c.builder.Build(descriptor, payload)
	if err != nil {
		return protocol.VerificationResponse{}, err
	}

	body, err := json.Marshal(wireReq)
	if err != nil {
		return protocol.VerificationResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return protocol.VerificationResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return protocol.VerificationResponse{}, fmt.Errorf("verify: %w", err)
	}
	defer resp.Body.Close()

	// 200 and 503 both carry a decision body; anything else means the
	// request never completed a protocol run.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return protocol.VerificationResponse{}, fmt.Errorf("verify: status %d: %s", resp.StatusCode, msg)
	}

	var out protocol.VerificationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return protocol.VerificationResponse{}, fmt.Errorf("decode verification response: %w", err)
	}

	c.log.Debug("verification response",
		"verified", out.Verified, "reason", out.ReasonCode)
	return out, nil
}
