package server_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/omochice/framed-socket/internal/server"
	"github.com/omochice/framed-socket/pkg/protocol"
)

const waitTimeout = 2 * time.Second

// recorder captures lifecycle events. onMessage, when set, runs after the
// message has been recorded.
type recorder struct {
	server.NopHandler

	mu       sync.Mutex
	messages []string

	started      chan struct{}
	connected    chan *server.Connection
	disconnected chan error
	received     chan string

	onMessage func(l *server.Listener, c *server.Connection, msg string)
}

func newRecorder() *recorder {
	return &recorder{
		started:      make(chan struct{}, 1),
		connected:    make(chan *server.Connection, 128),
		disconnected: make(chan error, 128),
		received:     make(chan string, 128),
	}
}

func (r *recorder) ServerStarted(*server.Listener) {
	r.started <- struct{}{}
}

func (r *recorder) Connected(_ *server.Listener, c *server.Connection) {
	r.connected <- c
}

func (r *recorder) Disconnected(_ *server.Listener, _ *server.Connection, cause error) {
	r.disconnected <- cause
}

func (r *recorder) MessageReceived(l *server.Listener, c *server.Connection, msg string) {
	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()
	r.received <- msg
	if r.onMessage != nil {
		r.onMessage(l, c, msg)
	}
}

func (r *recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

func startListener(t *testing.T, h server.Handler, opts ...server.Option) *server.Listener {
	t.Helper()

	base := []server.Option{
		server.WithAddress("127.0.0.1:0"),
		server.WithLogger(zerolog.Nop()),
	}
	l := server.New(h, append(base, opts...)...)
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(l.Stop)
	return l
}

// peer is a raw socket speaking the framing by hand.
type peer struct {
	net.Conn
	dec *protocol.Decoder
}

func dial(t *testing.T, addr string) *peer {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &peer{Conn: conn, dec: protocol.NewDecoder(conn, protocol.DefaultPacketSize, 0)}
}

func (p *peer) send(t *testing.T, msg string) {
	t.Helper()

	b, err := protocol.Encode(msg)
	require.NoError(t, err)
	require.NoError(t, protocol.WriteChunked(p.Conn, b, protocol.DefaultPacketSize))
}

func (p *peer) next(t *testing.T) string {
	t.Helper()

	require.NoError(t, p.SetReadDeadline(time.Now().Add(waitTimeout)))
	msg, err := p.dec.Next()
	require.NoError(t, err)
	return msg
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for event")
		var zero T
		return zero
	}
}
