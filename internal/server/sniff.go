package server

import (
	"bufio"
	"bytes"
	"errors"
	"net"
	"time"
)

// sniffTimeout bounds how long an auto-transport connection may stay silent
// before it is treated as plain TCP. WebSocket peers send their handshake
// immediately; framed peers may wait for the server to speak first.
const sniffTimeout = 250 * time.Millisecond

var httpMethods = [][]byte{
	[]byte("GET "),
	[]byte("POST"),
	[]byte("PUT "),
	[]byte("HEAD"),
	[]byte("OPTI"),
	[]byte("PATC"),
	[]byte("DELE"),
	[]byte("CONN"),
}

// replayConn hands the bytes consumed by sniff back to the first reads of
// the framed or WebSocket layer, then continues on the socket.
type replayConn struct {
	net.Conn
	peeked *bufio.Reader
}

func (r *replayConn) Read(p []byte) (int, error) {
	return r.peeked.Read(p)
}

// sniff peeks at the first bytes of conn and reports whether the peer
// opened with an HTTP request line. The returned conn replays the peeked
// bytes.
func sniff(conn net.Conn) (net.Conn, bool, error) {
	rc := &replayConn{Conn: conn, peeked: bufio.NewReader(conn)}

	if err := conn.SetReadDeadline(time.Now().Add(sniffTimeout)); err != nil {
		return nil, false, err
	}
	prefix, err := rc.peeked.Peek(4)
	if resetErr := conn.SetReadDeadline(time.Time{}); resetErr != nil {
		return nil, false, resetErr
	}

	var ne net.Error
	switch {
	case err == nil:
	case errors.As(err, &ne) && ne.Timeout():
		// Silent or short opening: a framed peer.
		return rc, false, nil
	default:
		return nil, false, err
	}

	for _, m := range httpMethods {
		if bytes.HasPrefix(prefix, m) {
			return rc, true, nil
		}
	}
	return rc, false, nil
}
