package chat_test

import (
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omochice/framed-socket/internal/chat"
	"github.com/omochice/framed-socket/internal/server"
)

func newConn(t *testing.T) *server.Connection {
	t.Helper()

	a, b := net.Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return server.NewConnection(a)
}

func TestHub_JoinLeave(t *testing.T) {
	hub := chat.NewHub()
	ann, bob := newConn(t), newConn(t)

	hub.Join(ann, "ann")
	hub.Join(bob, "bob")
	hub.Join(ann, "ann")

	require.Equal(t, 2, hub.MemberCount())
	require.Equal(t, []string{"ann", "bob"}, hub.Names())

	require.True(t, hub.Leave(ann))
	require.False(t, hub.Leave(ann))
	require.Equal(t, []string{"bob"}, hub.Names())
}

func TestHub_LeaveUnknown(t *testing.T) {
	hub := chat.NewHub()

	require.False(t, hub.Leave(newConn(t)))
	require.Zero(t, hub.MemberCount())
}

func TestHub_ConcurrentJoinLeave(t *testing.T) {
	hub := chat.NewHub()
	const n = 20

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		c := newConn(t)
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Join(c, "user")
			_ = hub.Names()
			if i%2 == 1 {
				hub.Leave(c)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, n/2, hub.MemberCount())
}
