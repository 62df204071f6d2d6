package client

import "context"

// Handler receives the frames read from the server, one at a time, on the
// client's receive goroutine.
type Handler interface {
	MessageReceived(c *Client, msg string)
}

// ConnectHandler is notified once the connection is established, before
// the receive loop starts.
type ConnectHandler interface {
	Connected(c *Client)
}

// DisconnectHandler is notified when the receive loop ends, before the
// socket is closed.
type DisconnectHandler interface {
	Disconnected(c *Client, cause error)
}

// InputLooper replaces the default local input loop when input is enabled.
// Returning from it ends local input only; the connection stays up.
type InputLooper interface {
	LocalInputLoop(ctx context.Context, c *Client)
}

// NopHandler implements every hook as a no-op.
type NopHandler struct{}

func (NopHandler) Connected(*Client)                {}
func (NopHandler) Disconnected(*Client, error)      {}
func (NopHandler) MessageReceived(*Client, string) {}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(c *Client, msg string)

func (f HandlerFunc) MessageReceived(c *Client, msg string) {
	f(c, msg)
}
