package httpserver

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/omochice/framed-socket/internal/server"
	"github.com/omochice/framed-socket/pkg/protocol"
)

const (
	DefaultErrorFile  = "error.html"
	DefaultPacketSize = 1024

	notFoundBody   = "404 Not Found"
	badRequestBody = "400 Bad Request"
	internalBody   = "500 Internal Server Error"
)

type options struct {
	errorFile string
	logger    zerolog.Logger
}

// Option configures a Server.
type Option func(*options)

// WithErrorFile sets the content file served as the body of 404 responses.
func WithErrorFile(name string) Option {
	return func(o *options) { o.errorFile = name }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Server is a listener handler that answers each connection's request
// and then closes the connection.
type Server struct {
	server.NopHandler

	content   fs.FS
	errorFile string
	log       zerolog.Logger
	closer    io.Closer

	mu     sync.RWMutex
	routes Routes
}

// New creates a Server serving static files from content.
func New(content fs.FS, opts ...Option) *Server {
	o := options{errorFile: DefaultErrorFile, logger: log.Logger}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		content:   content,
		errorFile: o.errorFile,
		log:       o.logger.With().Str("component", "httpserver").Logger(),
		routes:    Routes{},
	}
}

// Open creates a Server whose content root is the directory dir. Files are
// resolved inside dir only; Close releases it.
func Open(dir string, opts ...Option) (*Server, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open content root: %w", err)
	}
	s := New(root.FS(), opts...)
	s.closer = root
	return s, nil
}

// Close releases the content root opened by Open.
func (s *Server) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// ListenerOptions returns the listener settings HTTP peers need: raw reads,
// since browsers do not send the frame terminator.
func ListenerOptions() []server.Option {
	return []server.Option{
		server.WithRawReads(),
		server.WithPacketSize(DefaultPacketSize),
	}
}

// Handle registers h for route.
func (s *Server) Handle(route string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[route] = h
}

// HandleRoutes registers every entry of rt.
func (s *Server) HandleRoutes(rt Routes) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, h := range rt {
		s.routes[k] = h
	}
}

// Mount registers the routes of app under its name.
func (s *Server) Mount(app App) {
	s.HandleRoutes(app.Mounted())
}

func (s *Server) ServerStarted(l *server.Listener) {
	s.log.Info().Str("addr", l.Addr()).Msg("http server started")
}

func (s *Server) Connected(_ *server.Listener, c *server.Connection) {
	s.log.Debug().Stringer("conn", c).Msg("client connected")
}

func (s *Server) Disconnected(_ *server.Listener, c *server.Connection, cause error) {
	s.log.Debug().Stringer("conn", c).AnErr("cause", cause).Msg("client disconnected")
}

// MessageReceived answers one request and closes the connection.
func (s *Server) MessageReceived(l *server.Listener, c *server.Connection, msg string) {
	defer c.Close()

	resp := s.Serve(c, msg)
	b, err := resp.Render()
	if errors.Is(err, protocol.ErrUnencodable) {
		resp.Binary = true
		b, err = resp.Render()
	}
	if err != nil {
		s.log.Error().Err(err).Stringer("conn", c).Msg("failed to render response")
		if b, err = statusResponse(500, internalBody).Render(); err != nil {
			return
		}
	}
	_ = l.SendBytes(c, b, false)
}

// Serve parses raw and builds the response for it. c is handed to route
// handlers and may be nil.
func (s *Server) Serve(c *server.Connection, raw string) *Response {
	req, err := ParseRequest(raw)
	if err != nil {
		s.log.Warn().Err(err).Msg("bad request")
		return statusResponse(400, badRequestBody)
	}
	req.Conn = c
	req.content = s.content

	s.log.Info().Str("method", req.Method).Str("route", req.Route).Msg("request")
	s.follow(req)
	return req.Response()
}

func (s *Server) follow(req *Request) {
	s.mu.RLock()
	h, ok := s.routes.lookup(req.Route)
	s.mu.RUnlock()

	switch {
	case ok:
		h(req.Conn, req)
	case strings.Contains(req.Route, "."):
		s.serveFile(req)
	default:
		s.notFound(req)
	}
}

func (s *Server) serveFile(req *Request) {
	ct := req.ContentType
	if ct == "" {
		ct = typeByExtension(req.Route)
	}
	req.SetContentType(ct)

	var err error
	if isText(ct) {
		err = req.ReadText(req.Route)
	} else {
		err = req.ReadBytes(req.Route)
	}
	if err != nil {
		s.log.Debug().Err(err).Str("route", req.Route).Msg("static file not found")
		s.notFound(req)
	}
}

func (s *Server) notFound(req *Request) {
	req.SetStatus(404)
	req.SetContentType(defaultContentType)
	if err := req.ReadText(s.errorFile); err != nil {
		req.Write(notFoundBody)
	}
}

func typeByExtension(name string) string {
	ct := mime.TypeByExtension(path.Ext(name))
	if ct == "" {
		return "application/octet-stream"
	}
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}

func isText(ct string) bool {
	switch {
	case strings.HasPrefix(ct, "text/"),
		strings.HasSuffix(ct, "+xml"),
		strings.HasSuffix(ct, "+json"):
		return true
	}
	switch ct {
	case "application/json", "application/javascript", "application/xml":
		return true
	}
	return false
}
