// Package ws carries the framed byte stream inside binary WebSocket
// messages, so browser peers can reach a Listener.
package ws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

const (
	handshakeTimeout = 10 * time.Second
	closeTimeout     = time.Second
)

// Conn adapts a WebSocket session to net.Conn. Every Write becomes one
// binary message; Read returns message payloads as a continuous stream.
type Conn struct {
	net.Conn

	state  ws.State
	reader io.Reader

	readMu  sync.Mutex
	pending []byte

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newConn(conn net.Conn, reader io.Reader, state ws.State) *Conn {
	return &Conn{
		Conn:   conn,
		state:  state,
		reader: reader,
	}
}

// Upgrade performs the server side of the handshake on a freshly accepted
// socket.
func Upgrade(conn net.Conn) (*Conn, error) {
	if err := conn.SetDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}
	if _, err := ws.Upgrade(conn); err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}
	return newConn(conn, conn, ws.StateServerSide), nil
}

// Dial connects to a ws:// URL.
func Dial(ctx context.Context, url string) (*Conn, error) {
	conn, br, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	var reader io.Reader = conn
	if br != nil {
		// br holds frames that arrived with the handshake response. Copy
		// them out so the pooled reader can go back right away.
		early := make([]byte, br.Buffered())
		_, err := io.ReadFull(br, early)
		ws.PutReader(br)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to dial %s: %w", url, err)
		}
		reader = io.MultiReader(bytes.NewReader(early), conn)
	}
	return newConn(conn, reader, ws.StateClientSide), nil
}

// IsURL reports whether addr names a WebSocket endpoint.
func IsURL(addr string) bool {
	return strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://")
}

// Read implements net.Conn.
func (c *Conn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for len(c.pending) == 0 {
		data, err := c.readMessage()
		if err != nil {
			var closed wsutil.ClosedError
			if errors.As(err, &closed) {
				return 0, io.EOF
			}
			return 0, err
		}
		c.pending = data
	}

	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *Conn) readMessage() ([]byte, error) {
	rw := struct {
		io.Reader
		io.Writer
	}{c.reader, lockedWriter{c}}

	var (
		data []byte
		op   ws.OpCode
		err  error
	)
	if c.state.ServerSide() {
		data, op, err = wsutil.ReadClientData(rw)
	} else {
		data, op, err = wsutil.ReadServerData(rw)
	}
	if err != nil {
		return nil, err
	}
	if op != ws.OpBinary && op != ws.OpText {
		return nil, nil
	}
	return data, nil
}

// Write implements net.Conn.
func (c *Conn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var err error
	if c.state.ServerSide() {
		err = wsutil.WriteServerBinary(c.Conn, p)
	} else {
		err = wsutil.WriteClientBinary(c.Conn, p)
	}
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a close frame and closes the socket.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(closeTimeout))
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")

		c.writeMu.Lock()
		if c.state.ServerSide() {
			_ = wsutil.WriteServerMessage(c.Conn, ws.OpClose, body)
		} else {
			_ = wsutil.WriteClientMessage(c.Conn, ws.OpClose, body)
		}
		c.writeMu.Unlock()

		err = c.Conn.Close()
	})
	return err
}

// lockedWriter serializes control-frame replies with regular writes.
type lockedWriter struct {
	c *Conn
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.writeMu.Lock()
	defer w.c.writeMu.Unlock()
	return w.c.Conn.Write(p)
}

var _ net.Conn = (*Conn)(nil)
