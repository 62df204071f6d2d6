package client_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/omochice/framed-socket/internal/client"
	"github.com/omochice/framed-socket/internal/server"
	"github.com/omochice/framed-socket/pkg/protocol"
)

const waitTimeout = 2 * time.Second

type recorder struct {
	client.NopHandler

	connected    chan struct{}
	disconnected chan error
	received     chan string
}

func newRecorder() *recorder {
	return &recorder{
		connected:    make(chan struct{}, 4),
		disconnected: make(chan error, 4),
		received:     make(chan string, 64),
	}
}

func (r *recorder) Connected(*client.Client)                { r.connected <- struct{}{} }
func (r *recorder) Disconnected(_ *client.Client, err error) { r.disconnected <- err }
func (r *recorder) MessageReceived(_ *client.Client, msg string) {
	r.received <- msg
}

// echoServer answers "hello" with "world" and reports everything it reads.
type echoServer struct {
	server.NopHandler
	received chan string
}

func (e *echoServer) MessageReceived(l *server.Listener, c *server.Connection, msg string) {
	e.received <- msg
	if msg == "hello" {
		_ = l.Send(c, "world")
	}
}

func startServer(t *testing.T, opts ...server.Option) (*server.Listener, *echoServer) {
	t.Helper()

	h := &echoServer{received: make(chan string, 64)}
	base := []server.Option{
		server.WithAddress("127.0.0.1:0"),
		server.WithLogger(zerolog.Nop()),
	}
	l := server.New(h, append(base, opts...)...)
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(l.Stop)
	return l, h
}

func connect(t *testing.T, h client.Handler, addr string, opts ...client.Option) *client.Client {
	t.Helper()

	base := []client.Option{
		client.WithAddress(addr),
		client.WithLogger(zerolog.Nop()),
	}
	c := client.New(h, append(base, opts...)...)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(c.Disconnect)
	return c
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

func TestClient_HelloWorld(t *testing.T) {
	l, srv := startServer(t)
	rec := newRecorder()
	c := connect(t, rec, l.Addr())

	waitFor(t, rec.connected)
	require.True(t, c.IsConnected())

	require.NoError(t, c.Send("hello"))
	require.Equal(t, "hello", waitFor(t, srv.received))
	require.Equal(t, "world", waitFor(t, rec.received))
}

func TestClient_LargeMessage(t *testing.T) {
	l, srv := startServer(t, server.WithPacketSize(16))
	c := connect(t, newRecorder(), l.Addr(), client.WithPacketSize(16))

	msg := strings.Repeat("0123456789abcdef", 3)
	require.NoError(t, c.Send(msg))
	require.Equal(t, msg, waitFor(t, srv.received))
}

func TestClient_ConnectTwice(t *testing.T) {
	l, _ := startServer(t)
	c := connect(t, newRecorder(), l.Addr())

	require.ErrorIs(t, c.Connect(context.Background()), client.ErrAlreadyConnected)
}

func TestClient_ConnectRefused(t *testing.T) {
	l, _ := startServer(t)
	addr := l.Addr()
	l.Stop()

	c := client.New(newRecorder(), client.WithAddress(addr), client.WithLogger(zerolog.Nop()))
	err := c.Connect(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to connect to server")
	require.False(t, c.IsConnected())
}

func TestClient_SendBeforeConnect(t *testing.T) {
	c := client.New(newRecorder(), client.WithLogger(zerolog.Nop()))

	err := c.Send("hello")
	require.ErrorIs(t, err, client.ErrNotConnected)
	require.ErrorIs(t, err, protocol.ErrClosed)

	c.Wait()
	require.Nil(t, c.Done())
}

func TestClient_Disconnect(t *testing.T) {
	l, _ := startServer(t)
	rec := newRecorder()
	c := connect(t, rec, l.Addr())
	waitFor(t, rec.connected)

	c.Disconnect()

	require.ErrorIs(t, waitFor(t, rec.disconnected), protocol.ErrClosed)
	require.False(t, c.IsConnected())
	require.ErrorIs(t, c.Err(), protocol.ErrClosed)
	require.ErrorIs(t, c.Send("late"), client.ErrNotConnected)
	require.Eventually(t, func() bool { return l.ConnectionCount() == 0 }, waitTimeout, 10*time.Millisecond)
}

func TestClient_ServerStopEndsReceiveLoop(t *testing.T) {
	l, _ := startServer(t)
	rec := newRecorder()
	c := connect(t, rec, l.Addr())
	waitFor(t, rec.connected)

	l.Stop()

	cause := waitFor(t, rec.disconnected)
	require.True(t, protocol.IsGraceful(cause) || errors.Is(cause, protocol.ErrReset), "unexpected cause %v", cause)
	waitFor(t, c.Done())
	require.False(t, c.IsConnected())
}

func TestClient_Reconnect(t *testing.T) {
	l, srv := startServer(t)
	rec := newRecorder()
	c := connect(t, rec, l.Addr())
	waitFor(t, rec.connected)

	c.Disconnect()
	waitFor(t, rec.disconnected)

	require.NoError(t, c.Connect(context.Background()))
	waitFor(t, rec.connected)
	require.Nil(t, c.Err())

	require.NoError(t, c.Send("again"))
	require.Equal(t, "again", waitFor(t, srv.received))
}

func TestClient_LocalInputStopsAtQuit(t *testing.T) {
	l, srv := startServer(t)
	rec := newRecorder()
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })
	c := connect(t, rec, l.Addr(), client.WithInput(pr))

	// One line at a time: frames written back to back may share a read.
	for _, line := range []string{"first", "second"} {
		_, err := io.WriteString(pw, line+"\n")
		require.NoError(t, err)
		require.Equal(t, line, waitFor(t, srv.received))
	}
	_, err := io.WriteString(pw, client.QuitCommand+"\nnever\n")
	require.NoError(t, err)
	waitFor(t, c.InputDone())

	select {
	case msg := <-srv.received:
		t.Fatalf("line after quit was forwarded: %q", msg)
	case <-time.After(100 * time.Millisecond):
	}

	// Receiving keeps working after local input has ended.
	require.True(t, c.IsConnected())
	_, err = l.Broadcast("still here")
	require.NoError(t, err)
	require.Equal(t, "still here", waitFor(t, rec.received))
}

type inputLooper struct {
	*recorder
	ran chan struct{}
}

func (h inputLooper) LocalInputLoop(_ context.Context, c *client.Client) {
	_ = c.Send("from custom loop")
	close(h.ran)
}

func TestClient_CustomInputLoop(t *testing.T) {
	l, srv := startServer(t)
	h := inputLooper{recorder: newRecorder(), ran: make(chan struct{})}
	c := connect(t, h, l.Addr(), client.WithInput(nil))

	waitFor(t, h.ran)
	require.Equal(t, "from custom loop", waitFor(t, srv.received))
	waitFor(t, c.InputDone())
}

type panicky struct {
	*recorder
}

func (panicky) MessageReceived(*client.Client, string) {
	panic("boom")
}

func TestClient_HandlerPanicEndsConnection(t *testing.T) {
	l, _ := startServer(t)
	h := panicky{recorder: newRecorder()}
	c := connect(t, h, l.Addr())
	waitFor(t, h.connected)
	require.Eventually(t, func() bool { return l.ConnectionCount() == 1 }, waitTimeout, 10*time.Millisecond)

	_, err := l.Broadcast("trigger")
	require.NoError(t, err)

	require.ErrorIs(t, waitFor(t, h.disconnected), client.ErrHandlerPanic)
	waitFor(t, c.Done())
}

func TestClient_WebSocket(t *testing.T) {
	l, srv := startServer(t, server.WithTransport(server.TransportWebSocket))
	rec := newRecorder()
	c := connect(t, rec, "ws://"+l.Addr()+"/")

	require.NoError(t, c.Send("hello"))
	require.Equal(t, "hello", waitFor(t, srv.received))
	require.Equal(t, "world", waitFor(t, rec.received))
}
