package server

import (
	"net"
	"sync"
)

// Registry is the ordered set of live connections of a listener.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	conns []*Connection
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends c. Adding a connection that is already present is a no-op.
func (r *Registry) Add(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.conns {
		if existing == c {
			return
		}
	}
	r.conns = append(r.conns, c)
}

// Remove deletes c and reports whether it was present.
func (r *Registry) Remove(c *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.conns {
		if existing == c {
			// Copy instead of reslicing in place so snapshots stay intact.
			next := make([]*Connection, 0, len(r.conns)-1)
			next = append(next, r.conns[:i]...)
			r.conns = append(next, r.conns[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Lookup finds the connection wrapping the given socket.
func (r *Registry) Lookup(conn net.Conn) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.conns {
		if c.conn == conn {
			return c, true
		}
	}
	return nil, false
}

// Get finds a connection by its identifier.
func (r *Registry) Get(id uint64) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.conns {
		if c.id == id {
			return c, true
		}
	}
	return nil, false
}

// Snapshot returns the live connections in insertion order. The slice is
// not shared with the registry.
func (r *Registry) Snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Connection(nil), r.conns...)
}

// Each calls fn for every connection live at the time of the call, in
// insertion order, stopping early if fn returns false. fn runs without the
// registry lock held and may add or remove connections.
func (r *Registry) Each(fn func(*Connection) bool) {
	for _, c := range r.Snapshot() {
		if !fn(c) {
			return
		}
	}
}
