package server

import (
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

type registeredConn struct {
	conn *websocket.Conn
	open bool
}

// ConnectionRegistry tracks every live client connection. Each connection is
// registered by its own handshake path and removed by its own close/error
// path; no handler touches another connection's entry. The size of the
// registry is observable for diagnostics only.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	conns map[string]*registeredConn
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		conns: make(map[string]*registeredConn),
	}
}

// Register adds a connection and returns its identity.
func (r *ConnectionRegistry) Register(conn *websocket.Conn) string {
	id := uuid.New().String()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = &registeredConn{conn: conn, open: true}

	return id
}

// Unregister removes a connection.
func (r *ConnectionRegistry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

// MarkClosed flags a connection as no longer usable without removing it.
// Broadcast paths use this when a send fails; the entry heals out of the
// registry on the connection's own Unregister.
func (r *ConnectionRegistry) MarkClosed(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rc, ok := r.conns[id]; ok {
		rc.open = false
	}
}

// Get returns the socket for id, or nil if it is gone or closed.
func (r *ConnectionRegistry) Get(id string) *websocket.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rc, ok := r.conns[id]
	if !ok || !rc.open {
		return nil
	}
	return rc.conn
}

// ForEachOpen invokes fn once per open connection. Connections found closed
// are skipped silently. fn runs outside the registry lock so it may itself
// mark connections closed.
func (r *ConnectionRegistry) ForEachOpen(fn func(id string, conn *websocket.Conn)) {
	r.mu.RLock()
	type target struct {
		id   string
		conn *websocket.Conn
	}
	targets := make([]target, 0, len(r.conns))
	for id, rc := range r.conns {
		if !rc.open {
			continue
		}
		targets = append(targets, target{id: id, conn: rc.conn})
	}
	r.mu.RUnlock()

	for _, t := range targets {
		fn(t.id, t.conn)
	}
}

// Count reports how many connections are registered. Diagnostics only, never
// a protocol decision.
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
