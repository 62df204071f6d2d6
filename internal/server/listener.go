// Package server implements the listening side of the framed connection
// protocol: an accept loop, one receive loop per connection, and lifecycle
// callbacks into a Handler.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/omochice/framed-socket/internal/console"
	"github.com/omochice/framed-socket/internal/transport/ws"
	"github.com/omochice/framed-socket/pkg/protocol"
)

var (
	ErrAlreadyStarted = errors.New("server: listener already started")
	ErrHandlerPanic   = errors.New("server: handler panic")
)

const stopCommand = "stop"

// Listener owns a listening socket and the connections accepted on it.
type Listener struct {
	handler Handler
	opts    options
	log     zerolog.Logger

	registry *Registry
	nextID   atomic.Uint64

	mu       sync.Mutex
	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}

	wg sync.WaitGroup
}

// New creates a Listener dispatching to handler.
func New(handler Handler, opts ...Option) *Listener {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Listener{
		handler:  handler,
		opts:     o,
		log:      o.logger.With().Str("component", "listener").Logger(),
		registry: NewRegistry(),
	}
}

// Start binds the socket and launches the accept loop. It returns once the
// listener is accepting. Cancelling ctx has the same effect as Shutdown.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.listener != nil {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", l.opts.address)
	if err != nil {
		l.mu.Unlock()
		return fmt.Errorf("failed to start listener: %w", err)
	}
	l.listener = ln
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	runCtx := l.ctx
	l.mu.Unlock()

	context.AfterFunc(runCtx, func() { _ = ln.Close() })

	l.log.Info().
		Str("addr", ln.Addr().String()).
		Str("transport", string(l.opts.transport)).
		Int("packet_size", l.opts.packetSize).
		Msg("listener started")

	if h, ok := l.handler.(StartHandler); ok {
		if err := l.guard(nil, "ServerStarted", func() { h.ServerStarted(l) }); err != nil {
			l.cancel()
		}
	}

	if l.opts.commands {
		if h, ok := l.handler.(CommandLooper); ok {
			go h.CommandLoop(runCtx, l)
		} else {
			go l.commandLoop(runCtx)
		}
	}

	l.wg.Add(1)
	go l.acceptLoop(runCtx, ln)

	go func() {
		<-runCtx.Done()
		l.wg.Wait()
		close(l.done)
	}()

	return nil
}

// Run starts the listener and blocks until it has stopped.
func (l *Listener) Run(ctx context.Context) error {
	if err := l.Start(ctx); err != nil {
		return err
	}
	l.Wait()
	return nil
}

// Wait blocks until the accept loop and every receive loop have returned.
// It returns immediately if the listener was never started.
func (l *Listener) Wait() {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Shutdown signals the accept loop and every receive loop to stop, without
// waiting for them. It is safe to call from a handler.
func (l *Listener) Shutdown() {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Stop shuts the listener down and waits for all of its goroutines. It must
// not be called from a handler callback.
func (l *Listener) Stop() {
	l.Shutdown()
	l.Wait()
}

// Addr returns the bound address, or "" before Start.
func (l *Listener) Addr() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener != nil {
		return l.listener.Addr().String()
	}
	return ""
}

// Registry returns the set of live connections.
func (l *Listener) Registry() *Registry {
	return l.registry
}

// ConnectionCount returns the number of live connections.
func (l *Listener) ConnectionCount() int {
	return l.registry.Len()
}

// Connections returns a snapshot of the live connections.
func (l *Listener) Connections() []*Connection {
	return l.registry.Snapshot()
}

// Lookup returns the connection wrapping conn.
func (l *Listener) Lookup(conn net.Conn) (*Connection, bool) {
	return l.registry.Lookup(conn)
}

// Send writes msg to c as one frame. A closed connection yields an error
// wrapping protocol.ErrClosed.
func (l *Listener) Send(c *Connection, msg string) error {
	if err := c.Send(msg); err != nil {
		l.log.Debug().Err(err).Stringer("conn", c).Msg("send failed")
		return err
	}
	return nil
}

// SendBytes writes b to c unchanged, tagging it with the terminator when
// tag is set.
func (l *Listener) SendBytes(c *Connection, b []byte, tag bool) error {
	if err := c.SendBytes(b, tag); err != nil {
		l.log.Debug().Err(err).Stringer("conn", c).Msg("send failed")
		return err
	}
	return nil
}

// Broadcast sends msg to every live connection except those listed. It
// returns the number of connections reached. Connections whose peer goes
// away while the broadcast is in progress are skipped silently; other
// failures are joined into the returned error.
func (l *Listener) Broadcast(msg string, except ...*Connection) (int, error) {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return 0, err
	}

	var (
		sent int
		errs []error
	)
	l.registry.Each(func(c *Connection) bool {
		for _, skip := range except {
			if c == skip {
				return true
			}
		}
		if err := c.SendBytes(frame, false); err != nil {
			if !errors.Is(err, protocol.ErrClosed) && !errors.Is(err, protocol.ErrReset) {
				errs = append(errs, err)
			}
			return true
		}
		sent++
		return true
	})
	return sent, errors.Join(errs...)
}

func (l *Listener) acceptLoop(ctx context.Context, ln net.Listener) {
	defer l.wg.Done()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				l.log.Info().Msg("listener stopped")
				return
			}
			backoff = nextBackoff(backoff)
			l.log.Warn().Err(err).Dur("retry_in", backoff).Msg("failed to accept connection")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			continue
		}
		backoff = 0

		l.wg.Add(1)
		go l.serve(ctx, conn)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > time.Second {
		d = time.Second
	}
	return d
}

// serve admits conn and runs its receive loop until the peer goes away or
// the listener stops.
func (l *Listener) serve(ctx context.Context, conn net.Conn) {
	defer l.wg.Done()

	conn, ok := l.negotiate(ctx, conn)
	if !ok {
		return
	}

	c := l.newConnection(conn)
	l.registry.Add(c)
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	l.log.Debug().Stringer("conn", c).Msg("client connected")

	var cause error
	if h, ok := l.handler.(ConnectHandler); ok {
		cause = l.guard(c, "Connected", func() { h.Connected(l, c) })
	}
	if cause == nil {
		cause = l.receive(c)
	}
	if ctx.Err() != nil && !errors.Is(cause, ErrHandlerPanic) {
		cause = fmt.Errorf("%w: listener stopped", protocol.ErrClosed)
	}

	if protocol.IsGraceful(cause) {
		l.log.Debug().Stringer("conn", c).AnErr("cause", cause).Msg("client disconnected")
	} else {
		l.log.Warn().Stringer("conn", c).Err(cause).Msg("client dropped")
	}

	if h, ok := l.handler.(DisconnectHandler); ok {
		_ = l.guard(c, "Disconnected", func() { h.Disconnected(l, c, cause) })
	}
	l.registry.Remove(c)
	_ = c.Close()
}

// negotiate applies the configured transport to a freshly accepted socket.
// On failure the socket is closed.
func (l *Listener) negotiate(ctx context.Context, conn net.Conn) (net.Conn, bool) {
	if l.opts.transport == TransportTCP {
		return conn, true
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	upgrade := l.opts.transport == TransportWebSocket
	if l.opts.transport == TransportAuto {
		sniffed, isHTTP, err := sniff(conn)
		if err != nil {
			l.log.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("connection closed before first read")
			_ = conn.Close()
			return nil, false
		}
		conn, upgrade = sniffed, isHTTP
	}
	if !upgrade {
		return conn, true
	}

	wc, err := ws.Upgrade(conn)
	if err != nil {
		l.log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("websocket handshake failed")
		_ = conn.Close()
		return nil, false
	}
	return wc, true
}

func (l *Listener) newConnection(conn net.Conn) *Connection {
	var c *Connection
	if f, ok := l.handler.(ConnectionFactory); ok {
		c = f.NewConnection(conn)
	}
	if c == nil {
		c = NewConnection(conn)
	}
	c.id = l.nextID.Add(1)
	c.packetSize = l.opts.packetSize
	return c
}

func (l *Listener) receive(c *Connection) error {
	var dec *protocol.Decoder
	if l.opts.rawReads {
		dec = protocol.NewRawDecoder(c.conn, l.opts.packetSize)
	} else {
		dec = protocol.NewDecoder(c.conn, l.opts.packetSize, l.opts.maxFrameSize)
	}

	for {
		msg, err := dec.Next()
		if err != nil {
			return err
		}
		if err := l.guard(c, "MessageReceived", func() { l.handler.MessageReceived(l, c, msg) }); err != nil {
			return err
		}
	}
}

// guard runs a handler callback, converting a panic into an error so that
// it only affects the connection it happened on.
func (l *Listener) guard(c *Connection, hook string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w in %s: %v", ErrHandlerPanic, hook, r)
			ev := l.log.Error().Str("hook", hook).Interface("panic", r)
			if c != nil {
				ev = ev.Stringer("conn", c)
			}
			ev.Msg("handler panicked")
		}
	}()
	fn()
	return nil
}

// commandLoop reads control lines until it sees "stop" or ctx ends.
// Any other input is ignored.
func (l *Listener) commandLoop(ctx context.Context) {
	lines := console.Lines(ctx, l.opts.commandInput)
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if strings.TrimSpace(line) == stopCommand {
				l.log.Info().Msg("stop command received")
				l.Shutdown()
				return
			}
			l.log.Debug().Str("command", line).Msg("unknown command ignored")
		}
	}
}
