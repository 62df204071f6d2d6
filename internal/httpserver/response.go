package httpserver

import (
	"fmt"
	"strings"

	"github.com/omochice/framed-socket/pkg/protocol"
)

// Response is an HTTP/1.1 response in the server's fixed header layout.
type Response struct {
	Status      int
	ContentType string
	Body        []byte

	// Binary responses carry Accept-Ranges and send Body unencoded.
	Binary bool
}

// Render produces the bytes to put on the wire. A text body is re-encoded
// as Latin-1 and fails with protocol.ErrUnencodable if it cannot be; a
// binary body is sent as is.
func (r *Response) Render() ([]byte, error) {
	ct := r.ContentType
	if ct == "" {
		ct = defaultContentType
	}

	body := r.Body
	if !r.Binary {
		var err error
		if body, err = latin1(string(r.Body)); err != nil {
			return nil, err
		}
	}

	var head strings.Builder
	fmt.Fprintf(&head, "HTTP/1.1 %d OK\r\n", r.Status)
	head.WriteString("Cache-Control: no-cache, private\r\n")
	fmt.Fprintf(&head, "Content-Length: %d\r\n", len(body))
	fmt.Fprintf(&head, "Content-Type: %s, charset=iso-8859-1\r\n", ct)
	if r.Binary {
		head.WriteString("Accept-Ranges: bytes\r\n")
	}
	head.WriteString("\r\n")

	hb, err := latin1(head.String())
	if err != nil {
		return nil, err
	}
	return append(hb, body...), nil
}

func latin1(s string) ([]byte, error) {
	b, err := protocol.Encode(s)
	if err != nil {
		return nil, err
	}
	return b[:len(b)-len(protocol.Terminator)], nil
}

func statusResponse(code int, text string) *Response {
	return &Response{Status: code, ContentType: defaultContentType, Body: []byte(text)}
}
