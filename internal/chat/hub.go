package chat

import (
	"sync"

	"github.com/omochice/framed-socket/internal/server"
)

// Member is the chat state attached to one connection.
type Member struct {
	mu   sync.RWMutex
	name string
}

// Name returns the member's chosen name, or "" before one was given.
func (m *Member) Name() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.name
}

// Named reports whether the member has chosen a name.
func (m *Member) Named() bool {
	return m.Name() != ""
}

func (m *Member) setName(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
}

func memberOf(c *server.Connection) *Member {
	if m, ok := c.Value().(*Member); ok {
		return m
	}
	m := &Member{}
	c.SetValue(m)
	return m
}

// Hub tracks the connections that have joined the room, in join order.
type Hub struct {
	mu      sync.RWMutex
	members []*server.Connection
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{}
}

// Join names c and adds it to the room.
func (h *Hub) Join(c *server.Connection, name string) {
	memberOf(c).setName(name)

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.members {
		if m == c {
			return
		}
	}
	h.members = append(h.members, c)
}

// Leave removes c from the room. It reports whether c had joined.
func (h *Hub) Leave(c *server.Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, m := range h.members {
		if m == c {
			h.members = append(h.members[:i:i], h.members[i+1:]...)
			return true
		}
	}
	return false
}

// Names returns the names of everyone in the room.
func (h *Hub) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.members))
	for _, c := range h.members {
		names = append(names, memberOf(c).Name())
	}
	return names
}

// MemberCount returns number of members in the room.
func (h *Hub) MemberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}
