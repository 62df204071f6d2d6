package server

import (
	"context"
	"net"
)

// Handler receives the frames read from every connection. MessageReceived
// runs on the connection's own goroutine: calls for one connection never
// overlap, calls for different connections may run in parallel.
//
// A Handler may additionally implement any of the optional interfaces
// below; the Listener checks for them at the matching point of the
// lifecycle.
type Handler interface {
	MessageReceived(l *Listener, c *Connection, msg string)
}

// StartHandler is notified once the listening socket is bound, before the
// first connection is accepted.
type StartHandler interface {
	ServerStarted(l *Listener)
}

// ConnectHandler is notified after a connection is registered and before
// its receive loop starts.
type ConnectHandler interface {
	Connected(l *Listener, c *Connection)
}

// DisconnectHandler is notified when a receive loop ends, before the
// connection is deregistered and closed. cause is classified by the
// protocol package.
type DisconnectHandler interface {
	Disconnected(l *Listener, c *Connection, cause error)
}

// ConnectionFactory builds the Connection for a freshly accepted socket,
// usually to attach an application value. The default is NewConnection.
type ConnectionFactory interface {
	NewConnection(conn net.Conn) *Connection
}

// CommandLooper replaces the default command loop when commands are
// enabled. It must return once ctx is done.
type CommandLooper interface {
	CommandLoop(ctx context.Context, l *Listener)
}

// NopHandler implements every optional hook as a no-op. Embed it to
// override only the hooks you need.
type NopHandler struct{}

func (NopHandler) ServerStarted(*Listener)                       {}
func (NopHandler) Connected(*Listener, *Connection)              {}
func (NopHandler) Disconnected(*Listener, *Connection, error)    {}
func (NopHandler) MessageReceived(*Listener, *Connection, string) {}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(l *Listener, c *Connection, msg string)

func (f HandlerFunc) MessageReceived(l *Listener, c *Connection, msg string) {
	f(l, c, msg)
}
