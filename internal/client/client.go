// Package client implements the connecting side of the framed connection
// protocol: one outbound socket, its receive loop, and an optional local
// input loop.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/omochice/framed-socket/internal/console"
	"github.com/omochice/framed-socket/internal/transport/ws"
	"github.com/omochice/framed-socket/pkg/protocol"
)

// QuitCommand ends the default local input loop.
const QuitCommand = `\quit`

var (
	ErrAlreadyConnected = errors.New("client: already connected")
	ErrNotConnected     = fmt.Errorf("client: not connected: %w", protocol.ErrClosed)
	ErrHandlerPanic     = errors.New("client: handler panic")
)

// Client manages a single outbound connection.
type Client struct {
	handler Handler
	opts    options
	log     zerolog.Logger

	mu     sync.Mutex
	conn   net.Conn
	cancel context.CancelFunc
	done   chan struct{}
	err    error

	inputDone chan struct{}

	writeMu   sync.Mutex
	connected atomic.Bool
}

// New creates a Client dispatching to handler.
func New(handler Handler, opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Client{
		handler: handler,
		opts:    o,
		log:     o.logger.With().Str("component", "client").Str("server", o.address).Logger(),
	}
}

// Connect dials the server, fires Connected and starts the receive loop,
// plus the local input loop when input is enabled. ctx bounds the dial
// only; the connection lives until Disconnect or until the peer goes away.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.done != nil {
		select {
		case <-c.done:
		default:
			c.mu.Unlock()
			return ErrAlreadyConnected
		}
	}

	conn, err := c.dial(ctx)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to connect to server: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.conn = conn
	c.cancel = cancel
	c.done = done
	c.err = nil
	c.inputDone = nil
	runInput := c.opts.input
	if runInput {
		c.inputDone = make(chan struct{})
	}
	inputDone := c.inputDone
	c.connected.Store(true)
	c.mu.Unlock()

	context.AfterFunc(runCtx, func() { _ = conn.Close() })

	c.log.Info().Str("local", conn.LocalAddr().String()).Msg("connected")

	var cause error
	if h, ok := c.handler.(ConnectHandler); ok {
		cause = c.guard("Connected", func() { h.Connected(c) })
	}

	go c.run(runCtx, cancel, conn, done, cause)

	switch {
	case !runInput:
	case cause != nil:
		close(inputDone)
	default:
		go func() {
			defer close(inputDone)
			if h, ok := c.handler.(InputLooper); ok {
				h.LocalInputLoop(runCtx, c)
			} else {
				c.localInputLoop(runCtx)
			}
		}()
	}
	return nil
}

// InputDone is closed when the local input loop of the current connection
// returns. It is nil when input is disabled or Connect was never called.
func (c *Client) InputDone() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inputDone
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	if c.opts.dialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.dialTimeout)
		defer cancel()
	}
	if ws.IsURL(c.opts.address) {
		return ws.Dial(ctx, c.opts.address)
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", c.opts.address)
}

// run is the receive loop. A non-nil cause means Connected already failed
// and the loop ends immediately.
func (c *Client) run(ctx context.Context, cancel context.CancelFunc, conn net.Conn, done chan struct{}, cause error) {
	if cause == nil {
		cause = c.receive(conn)
	}
	if ctx.Err() != nil && !errors.Is(cause, ErrHandlerPanic) {
		cause = fmt.Errorf("%w: client disconnected", protocol.ErrClosed)
	}
	c.connected.Store(false)

	c.mu.Lock()
	c.err = cause
	c.mu.Unlock()

	if protocol.IsGraceful(cause) {
		c.log.Info().AnErr("cause", cause).Msg("disconnected")
	} else {
		c.log.Warn().Err(cause).Msg("connection lost")
	}

	if h, ok := c.handler.(DisconnectHandler); ok {
		_ = c.guard("Disconnected", func() { h.Disconnected(c, cause) })
	}

	cancel()
	_ = conn.Close()
	close(done)
}

func (c *Client) receive(conn net.Conn) error {
	dec := protocol.NewDecoder(conn, c.opts.packetSize, c.opts.maxFrameSize)
	for {
		msg, err := dec.Next()
		if err != nil {
			return err
		}
		if err := c.guard("MessageReceived", func() { c.handler.MessageReceived(c, msg) }); err != nil {
			return err
		}
	}
}

func (c *Client) guard(hook string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w in %s: %v", ErrHandlerPanic, hook, r)
			c.log.Error().Str("hook", hook).Interface("panic", r).Msg("handler panicked")
		}
	}()
	fn()
	return nil
}

// localInputLoop forwards each local line as a frame until QuitCommand is
// read or input ends. The receive loop keeps running afterwards.
func (c *Client) localInputLoop(ctx context.Context) {
	lines := console.Lines(ctx, c.opts.inputReader)
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				c.log.Debug().Msg("local input closed")
				return
			}
			if line == QuitCommand {
				c.log.Debug().Msg("local input stopped")
				return
			}
			if err := c.Send(line); err != nil {
				c.log.Warn().Err(err).Msg("failed to send input line")
				if errors.Is(err, protocol.ErrClosed) {
					return
				}
			}
		}
	}
}

// Send encodes msg as one frame and writes it to the server.
func (c *Client) Send(msg string) error {
	b, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return c.write(b)
}

// SendBytes writes b unchanged, appending the terminator when tag is set.
func (c *Client) SendBytes(b []byte, tag bool) error {
	return c.write(protocol.EncodeRaw(b, tag))
}

func (c *Client) write(b []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || !c.connected.Load() {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := protocol.WriteChunked(conn, b, c.opts.packetSize); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// IsConnected reports whether the receive loop is running.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Shutdown closes the connection without waiting for the receive loop.
// It is safe to call from a handler.
func (c *Client) Shutdown() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Disconnect closes the connection and waits for the receive loop to end.
// It must not be called from a handler callback.
func (c *Client) Disconnect() {
	c.Shutdown()
	c.Wait()
}

// Close is Disconnect for use as an io.Closer.
func (c *Client) Close() error {
	c.Disconnect()
	return nil
}

// Done is closed when the current connection's receive loop has ended.
// It is nil before the first Connect.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Wait blocks until the receive loop has ended. It returns immediately if
// Connect was never called.
func (c *Client) Wait() {
	if done := c.Done(); done != nil {
		<-done
	}
}

// Err returns the reason the last connection ended, or nil while it is
// still running.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
