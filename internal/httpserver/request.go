// Package httpserver serves HTTP/1.1 requests over listener connections,
// one request per connection. Requests are resolved against a route table
// or served as static files from a content root.
package httpserver

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/textproto"
	"path"
	"strings"

	"github.com/omochice/framed-socket/internal/server"
)

const defaultContentType = "text/html"

var ErrMalformedRequest = errors.New("httpserver: malformed request")

// Request is one parsed HTTP request together with the response being
// built for it by route handlers.
type Request struct {
	Method string
	Target string
	Route  string
	Proto  string

	Query    map[string]string
	PostData map[string]string
	Headers  map[string]string
	Body     string

	// ContentType is the first type listed in the Accept header, or "" when
	// the client did not name one.
	ContentType string

	Conn *server.Connection

	content fs.FS
	resp    Response
}

// ParseRequest parses the raw text of an HTTP request. It fails with
// ErrMalformedRequest when no method and target can be found.
func ParseRequest(raw string) (*Request, error) {
	fields := strings.Fields(raw)
	if len(fields) < 2 || !isMethod(fields[0]) || !strings.HasPrefix(fields[1], "/") {
		return nil, fmt.Errorf("%w: %q", ErrMalformedRequest, firstLine(raw))
	}

	r := &Request{
		Method:   fields[0],
		Target:   fields[1],
		Route:    fields[1],
		Query:    map[string]string{},
		PostData: map[string]string{},
		Headers:  map[string]string{},
	}
	if len(fields) > 2 && strings.HasPrefix(fields[2], "HTTP/") {
		r.Proto = fields[2]
	}

	if route, query, ok := strings.Cut(r.Route, "?"); ok {
		r.Route = route
		r.Query = ParseAttributes(query)
	}
	if len(r.Route) > 1 {
		r.Route = strings.TrimSuffix(r.Route, "/")
	}

	head, body, _ := strings.Cut(raw, "\r\n\r\n")
	r.Body = body
	r.parseHeaders(head)

	if r.Method == "POST" && len(fields) > 2 {
		if form := fields[len(fields)-1]; !strings.Contains(form, ";") {
			r.PostData = ParseAttributes(form)
		}
	}

	r.ContentType = acceptedType(raw)
	r.resp = Response{Status: 200, ContentType: r.ContentType}
	return r, nil
}

// ParseAttributes parses "k=v&k2=v2". The first "=" in each pair separates
// key from value, a pair without one maps to "", and later duplicates
// replace earlier ones.
func ParseAttributes(s string) map[string]string {
	attrs := map[string]string{}
	if s == "" {
		return attrs
	}
	for _, pair := range strings.Split(s, "&") {
		k, v, _ := strings.Cut(pair, "=")
		attrs[k] = v
	}
	return attrs
}

func (r *Request) parseHeaders(head string) {
	lines := strings.Split(head, "\n")
	for _, line := range lines[1:] {
		k, v, ok := strings.Cut(strings.TrimRight(line, "\r"), ":")
		if !ok {
			continue
		}
		r.Headers[textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
}

// acceptedType returns the Accept header's first content type, read up to
// the next comma, semicolon or line break.
func acceptedType(raw string) string {
	i := strings.Index(raw, "Accept:")
	if i < 0 {
		return ""
	}
	v := strings.TrimLeft(raw[i+len("Accept:"):], " \t")
	if end := strings.IndexAny(v, ",;\r\n"); end >= 0 {
		v = v[:end]
	}
	v = strings.TrimSpace(v)
	if v == "*/*" {
		return ""
	}
	return v
}

func isMethod(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return s != ""
}

func firstLine(raw string) string {
	line, _, _ := strings.Cut(raw, "\n")
	return strings.TrimSpace(line)
}

// Response returns the response built so far.
func (r *Request) Response() *Response {
	return &r.resp
}

// SetStatus sets the response status code.
func (r *Request) SetStatus(code int) {
	r.resp.Status = code
}

// SetContentType overrides the negotiated response content type.
func (r *Request) SetContentType(ct string) {
	r.resp.ContentType = ct
}

// Write replaces the response body with text.
func (r *Request) Write(text string) {
	r.resp.Body = []byte(text)
	r.resp.Binary = false
}

// ReadText loads a file from the content root as the text response body.
func (r *Request) ReadText(name string) error {
	b, err := r.readFile(name)
	if err != nil {
		return err
	}
	r.resp.Body = b
	r.resp.Binary = false
	return nil
}

// ReadBytes loads a file from the content root as a binary response body.
func (r *Request) ReadBytes(name string) error {
	b, err := r.readFile(name)
	if err != nil {
		return err
	}
	r.resp.Body = b
	r.resp.Binary = true
	return nil
}

// Render executes the html/template at name with data into the response
// body.
func (r *Request) Render(name string, data any) error {
	p, err := contentPath(name)
	if err != nil {
		return err
	}
	if r.content == nil {
		return fmt.Errorf("render %s: %w", name, fs.ErrNotExist)
	}
	tmpl, err := template.ParseFS(r.content, p)
	if err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	r.resp.Body = buf.Bytes()
	r.resp.Binary = false
	return nil
}

func (r *Request) readFile(name string) ([]byte, error) {
	p, err := contentPath(name)
	if err != nil {
		return nil, err
	}
	if r.content == nil {
		return nil, fmt.Errorf("read %s: %w", name, fs.ErrNotExist)
	}
	return fs.ReadFile(r.content, p)
}

// contentPath maps a request path onto a name inside the content root.
// Paths that would leave the root are reported as missing.
func contentPath(name string) (string, error) {
	p := strings.TrimPrefix(name, "/")
	if p == "" || !fs.ValidPath(p) {
		return "", fmt.Errorf("read %s: %w", name, fs.ErrNotExist)
	}
	return path.Clean(p), nil
}
