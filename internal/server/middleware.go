package server

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// RateLimiter implements per-connection rate limiting using a sliding
// window. One abusive client shouldn't affect others; messages over the
// limit are dropped, not fatal.
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	clock       clockwork.Clock
	mu          sync.Mutex
	requests    map[string][]time.Time // connectionID -> timestamps of recent messages
}

func NewRateLimiter(maxRequests int, window time.Duration, clock clockwork.Clock) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		clock:       clock,
		requests:    make(map[string][]time.Time),
	}
}

// Allow reports whether connectionID may send another message, recording the
// attempt when it is allowed.
func (r *RateLimiter) Allow(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.clock.Now().Add(-r.window)

	timestamps := r.requests[connectionID]
	valid := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= r.maxRequests {
		r.requests[connectionID] = valid
		return false
	}

	r.requests[connectionID] = append(valid, r.clock.Now())
	return true
}

// RemoveConnection drops rate data for a closed connection.
func (r *RateLimiter) RemoveConnection(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requests, connectionID)
}

// ConnectionHealth tracks last activity per connection so the server can
// reclaim sockets that have gone silent. Closing an idle connection runs the
// same cleanup path as an error close.
type ConnectionHealth struct {
	clock        clockwork.Clock
	mu           sync.RWMutex
	lastActivity map[string]time.Time
}

func NewConnectionHealth(clock clockwork.Clock) *ConnectionHealth {
	return &ConnectionHealth{
		clock:        clock,
		lastActivity: make(map[string]time.Time),
	}
}

// Track starts watching a connection, counting the handshake as activity.
func (h *ConnectionHealth) Track(connectionID string) {
	h.UpdateActivity(connectionID)
}

// UpdateActivity records that a connection just did something. Called on
// every inbound message.
func (h *ConnectionHealth) UpdateActivity(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastActivity[connectionID] = h.clock.Now()
}

// InactiveConnections returns every tracked connection silent for longer
// than timeout.
func (h *ConnectionHealth) InactiveConnections(timeout time.Duration) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.clock.Now()
	inactive := make([]string, 0)
	for connID, last := range h.lastActivity {
		if now.Sub(last) > timeout {
			inactive = append(inactive, connID)
		}
	}
	return inactive
}

// RemoveConnection stops tracking a closed connection.
func (h *ConnectionHealth) RemoveConnection(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.lastActivity, connectionID)
}
