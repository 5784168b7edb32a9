package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/anchorpq/anchorpq/protocol"
)

// Handler exposes the verification service over HTTP.
//
// Response status codes follow the protocol contract: any completed
// verification run returns 200 with the decision in the body, 400 is
// reserved for requests rejected before any cryptographic work, 429
// for rate-limited clients, and 503 signals a trust store outage. The
// handler never returns 401 or 403; trust denial is a 200 with
// verified=false.
type Handler struct {
	svc       *VerificationService
	keys      *KeyRing
	limit     *RateLimiter
	registrar TrustRegistrar
	log       *slog.Logger
}

// NewHandler wires the HTTP layer over the service, key ring and rate
// limiter. A nil registrar leaves the admin endpoint unregistered.
func NewHandler(svc *VerificationService, keys *KeyRing, limit *RateLimiter, registrar TrustRegistrar, log *slog.Logger) *Handler {
	if limit == nil {
		limit = NewRateLimiter(0)
	}
	return &Handler{svc: svc, keys: keys, limit: limit, registrar: registrar, log: log}
}

// RegisterRoutes attaches the protocol endpoints to the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/public-key", h.publicKey)
	r.Post("/verify", h.verify)
	if h.registrar != nil {
		r.Post("/admin/records", h.registerRecord)
	}
}

func (h *Handler) publicKey(w http.ResponseWriter, r *http.Request) {
	descriptor, err := h.keys.Descriptor()
	if err != nil {
		http.Error(w, "No verification key available", http.StatusServiceUnavailable)
		return
	}

	// Descriptors are immutable once published, so clients may cache.
	w.Header().Set("Cache-Control", "public, max-age=3600")
	h.writeJSON(w, http.StatusOK, descriptor)
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	// The rate limit runs before anything else; a limited client must
	// not cost a decode, let alone cryptographic work.
	clientIP := clientAddr(r)
	now := time.Now()
	if !h.limit.Allow(clientIP, now) {
		h.log.Warn("rate limit exceeded", "client", maskIP(clientIP))
		w.Header().Set("Retry-After", strconv.Itoa(int(rateLimitWindow/time.Second)))
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}
	if h.limit.Enabled() {
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(h.limit.Remaining(clientIP, now)))
	}

	var req protocol.VerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}

	result, err := h.svc.Verify(r.Context(), req)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	status := http.StatusOK
	if result.Reason == protocol.ReasonTrustStoreUnavailable {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, protocol.VerificationResponse{
		Verified:   result.Verified,
		ReasonCode: result.Reason,
		ServerTime: time.Now().UnixMilli(),
	})
}

// registerRecord lets release tooling register a trust record at
// runtime. The record body shares the payload's wire shape.
func (h *Handler) registerRecord(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var record protocol.IntegrityPayload
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse record: %v", err), http.StatusBadRequest)
		return
	}

	err := h.registrar.RegisterRecord(r.Context(), record.MerkleRoot, record.SignerFingerprint, record.Version, record.Variant)
	if errors.Is(err, ErrTrustStoreUnavailable) {
		http.Error(w, "Trust store unavailable", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid record: %v", err), http.StatusBadRequest)
		return
	}

	h.log.Info("registered trust record", "version", record.Version, "variant", record.Variant)
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("failed to encode response", "err", err)
	}
}

// clientAddr extracts the client IP. The RealIP middleware has already
// replaced RemoteAddr with the forwarded address when one is present.
func clientAddr(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
