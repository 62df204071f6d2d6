package server

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/omochice/framed-socket/pkg/protocol"
)

// Connection wraps one accepted stream socket together with an
// application-defined value.
type Connection struct {
	id         uint64
	conn       net.Conn
	remoteAddr net.Addr
	packetSize int

	writeMu sync.Mutex
	closed  atomic.Bool
	once    sync.Once

	mu    sync.RWMutex
	value any
}

// NewConnection wraps conn. Handlers that implement ConnectionFactory call
// this and attach their own value before returning.
func NewConnection(conn net.Conn) *Connection {
	return &Connection{
		conn:       conn,
		remoteAddr: conn.RemoteAddr(),
		packetSize: protocol.DefaultPacketSize,
	}
}

// ID returns the listener-assigned identifier. It is zero until the
// connection has been admitted.
func (c *Connection) ID() uint64 {
	return c.id
}

// Conn returns the underlying socket.
func (c *Connection) Conn() net.Conn {
	return c.conn
}

// RemoteAddr returns the peer address.
func (c *Connection) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// Value returns the application value attached to the connection.
func (c *Connection) Value() any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// SetValue attaches an application value to the connection.
func (c *Connection) SetValue(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
}

// Closed reports whether the socket has been closed.
func (c *Connection) Closed() bool {
	return c.closed.Load()
}

// Send encodes msg as one frame and writes it in packet-sized chunks.
func (c *Connection) Send(msg string) error {
	b, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return c.write(b)
}

// SendBytes writes b as-is, appending the terminator when tag is set.
func (c *Connection) SendBytes(b []byte, tag bool) error {
	return c.write(protocol.EncodeRaw(b, tag))
}

func (c *Connection) write(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("send to %s: %w", c.remoteAddr, protocol.ErrClosed)
	}
	if err := protocol.WriteChunked(c.conn, b, c.packetSize); err != nil {
		return fmt.Errorf("send to %s: %w", c.remoteAddr, err)
	}
	return nil
}

// Close closes the socket. Only the first call has any effect.
func (c *Connection) Close() error {
	var err error
	c.once.Do(func() {
		c.closed.Store(true)
		err = c.conn.Close()
	})
	return err
}

func (c *Connection) String() string {
	return fmt.Sprintf("conn#%d(%s)", c.id, c.remoteAddr)
}
