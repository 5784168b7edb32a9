package server

import (
	"strings"
	"sync"
	"time"
)

// rateLimitWindow is the fixed counting window. Counters reset at
// window boundaries rather than sliding; a client can at most double
// its budget by straddling a boundary, which is acceptable for an
// abuse brake.
const rateLimitWindow = time.Minute

// RateLimiter bounds how many verification requests a single client may
// submit per window, keyed by client IP. A limit of zero disables the
// limiter entirely. For multi-instance deployments the per-process
// counters undercount; a shared backend would be needed there.
type RateLimiter struct {
	limit int

	mu        sync.Mutex
	clients   map[string]*clientWindow
	nextSweep time.Time
}

type clientWindow struct {
	window   int64
	count    int
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing requestsPerMinute requests
// per client IP. Zero or negative disables limiting.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	return &RateLimiter{
		limit:   requestsPerMinute,
		clients: make(map[string]*clientWindow),
	}
}

// Enabled reports whether the limiter enforces a bound.
func (l *RateLimiter) Enabled() bool { return l.limit > 0 }

// Allow records one request from the client and reports whether it is
// within the current window's budget.
func (l *RateLimiter) Allow(clientIP string, now time.Time) bool {
	if !l.Enabled() {
		return true
	}
	window := now.Unix() / int64(rateLimitWindow/time.Second)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)

	entry, ok := l.clients[clientIP]
	if !ok || entry.window != window {
		entry = &clientWindow{window: window}
		l.clients[clientIP] = entry
	}
	entry.lastSeen = now
	entry.count++
	return entry.count <= l.limit
}

// Remaining returns the client's unused budget in the current window,
// or -1 when limiting is disabled.
func (l *RateLimiter) Remaining(clientIP string, now time.Time) int {
	if !l.Enabled() {
		return -1
	}
	window := now.Unix() / int64(rateLimitWindow/time.Second)

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.clients[clientIP]
	if !ok || entry.window != window {
		return l.limit
	}
	if entry.count >= l.limit {
		return 0
	}
	return l.limit - entry.count
}

// sweep evicts clients idle for two full windows. Runs at most once per
// quarter window, same cadence as the replay guard.
func (l *RateLimiter) sweep(now time.Time) {
	if now.Before(l.nextSweep) {
		return
	}
	l.nextSweep = now.Add(rateLimitWindow / 4)

	cutoff := now.Add(-2 * rateLimitWindow)
	for ip, entry := range l.clients {
		if entry.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
		}
	}
}

// maskIP hides the host part of an address in logs.
func maskIP(ip string) string {
	if i := strings.LastIndex(ip, "."); i > 0 {
		return ip[:i] + ".xxx"
	}
	return ip
}
