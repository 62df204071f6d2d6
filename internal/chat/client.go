package chat

import (
	"fmt"
	"io"
	"sync"

	"github.com/omochice/framed-socket/internal/client"
)

// Client is the client handler for the chat room. It prints everything the
// server sends to out.
type Client struct {
	client.NopHandler

	mu  sync.Mutex
	out io.Writer
}

// NewClient creates a chat client handler writing to out.
func NewClient(out io.Writer) *Client {
	return &Client{out: out}
}

func (h *Client) Connected(*client.Client) {
	h.println("Connected to the chat server")
}

func (h *Client) Disconnected(*client.Client, error) {
	h.println("Disconnected from the chat server")
}

func (h *Client) MessageReceived(_ *client.Client, msg string) {
	var m Message
	if err := m.Decode(msg); err != nil {
		h.println(msg)
		return
	}
	h.println(m.String())
}

func (h *Client) println(s string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintln(h.out, s)
}
