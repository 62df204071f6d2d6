package console_test

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omochice/framed-socket/internal/console"
)

func TestLines(t *testing.T) {
	var got []string
	for line := range console.Lines(context.Background(), strings.NewReader("one\r\ntwo\n\nthree")) {
		got = append(got, line)
	}
	require.Equal(t, []string{"one", "two", "", "three"}, got)
}

func TestLines_StopsOnCancel(t *testing.T) {
	r, w := io.Pipe()
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	lines := console.Lines(ctx, r)

	go func() { _, _ = w.Write([]byte("first\n")) }()
	require.Equal(t, "first", <-lines)

	cancel()
	_, err := w.Write([]byte("second\n"))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	select {
	case line, ok := <-lines:
		require.False(t, ok, "unexpected line %q after cancel", line)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
