package server_test

import (
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omochice/framed-socket/internal/server"
	"github.com/omochice/framed-socket/pkg/protocol"
)

func pipeConnection(t *testing.T) (*server.Connection, net.Conn) {
	t.Helper()

	local, remote := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})
	return server.NewConnection(local), remote
}

func TestRegistry_AddRemove(t *testing.T) {
	r := server.NewRegistry()
	a, _ := pipeConnection(t)
	b, _ := pipeConnection(t)

	r.Add(a)
	r.Add(b)
	r.Add(a)
	require.Equal(t, 2, r.Len())

	require.True(t, r.Remove(a))
	require.False(t, r.Remove(a))
	require.Equal(t, 1, r.Len())
}

func TestRegistry_SnapshotKeepsInsertionOrder(t *testing.T) {
	r := server.NewRegistry()
	conns := make([]*server.Connection, 5)
	for i := range conns {
		conns[i], _ = pipeConnection(t)
		r.Add(conns[i])
	}

	snap := r.Snapshot()
	require.Equal(t, conns, snap)

	r.Remove(conns[2])
	require.Len(t, snap, 5, "snapshot must not change after removal")
	require.Equal(t, []*server.Connection{conns[0], conns[1], conns[3], conns[4]}, r.Snapshot())
}

func TestRegistry_Lookup(t *testing.T) {
	r := server.NewRegistry()
	c, _ := pipeConnection(t)
	r.Add(c)

	got, ok := r.Lookup(c.Conn())
	require.True(t, ok)
	require.Same(t, c, got)

	other, _ := pipeConnection(t)
	_, ok = r.Lookup(other.Conn())
	require.False(t, ok)
}

func TestRegistry_EachToleratesRemoval(t *testing.T) {
	r := server.NewRegistry()
	conns := make([]*server.Connection, 4)
	for i := range conns {
		conns[i], _ = pipeConnection(t)
		r.Add(conns[i])
	}

	var visited []*server.Connection
	r.Each(func(c *server.Connection) bool {
		visited = append(visited, c)
		r.Remove(conns[3])
		return true
	})
	require.Equal(t, conns, visited)
	require.Equal(t, 3, r.Len())

	count := 0
	r.Each(func(*server.Connection) bool {
		count++
		return false
	})
	require.Equal(t, 1, count)
}

func TestRegistry_ConcurrentUse(t *testing.T) {
	r := server.NewRegistry()
	const workers = 32

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		c, _ := pipeConnection(t)
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			r.Add(c)
			_ = r.Snapshot()
			r.Each(func(*server.Connection) bool { return true })
			if i%2 == 0 {
				r.Remove(c)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, workers/2, r.Len())
}

func TestConnection_SendWritesFrame(t *testing.T) {
	c, remote := pipeConnection(t)

	go func() { _ = c.Send("hello") }()

	got, err := protocol.NewDecoder(remote, 64, 0).Next()
	require.NoError(t, err)
	require.Equal(t, "hello", got)
}

func TestConnection_SendBytesUntagged(t *testing.T) {
	c, remote := pipeConnection(t)

	go func() { _ = c.SendBytes([]byte{0x01, 0x02}, false) }()

	buf := make([]byte, 8)
	n, err := remote.Read(buf)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02}, buf[:n])
}

func TestConnection_CloseOnce(t *testing.T) {
	c, _ := pipeConnection(t)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	require.True(t, c.Closed())

	require.ErrorIs(t, c.Send("x"), protocol.ErrClosed)
}

func TestConnection_Value(t *testing.T) {
	c, _ := pipeConnection(t)
	require.Nil(t, c.Value())

	c.SetValue("ctx")
	require.Equal(t, "ctx", c.Value())
}
