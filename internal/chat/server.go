// Package chat is a chat room built on the framed connection protocol.
// Clients send plain text lines; the first one names the sender. The server
// answers with Message envelopes.
package chat

import (
	"net"
	"strings"

	"github.com/rs/zerolog"

	"github.com/omochice/framed-socket/internal/server"
)

const welcomeText = "Welcome to the chat server. What is your name?"

// Server is the listener handler for the chat room.
type Server struct {
	server.NopHandler

	hub *Hub
	log zerolog.Logger
}

// NewServer creates a chat room handler.
func NewServer(logger zerolog.Logger) *Server {
	return &Server{
		hub: NewHub(),
		log: logger.With().Str("component", "chat").Logger(),
	}
}

// Hub returns the room membership.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) NewConnection(conn net.Conn) *server.Connection {
	c := server.NewConnection(conn)
	c.SetValue(&Member{})
	return c
}

func (s *Server) ServerStarted(l *server.Listener) {
	s.log.Info().Str("addr", l.Addr()).Msg("chat server started")
}

func (s *Server) Connected(l *server.Listener, c *server.Connection) {
	s.log.Info().Stringer("conn", c).Msg("client connected")
	s.send(l, c, &Message{Type: MessageTypeSystem, Content: welcomeText})
}

func (s *Server) Disconnected(l *server.Listener, c *server.Connection, _ error) {
	m := memberOf(c)
	if !s.hub.Leave(c) {
		s.log.Info().Stringer("conn", c).Msg("unnamed client disconnected")
		return
	}
	s.log.Info().Str("name", m.Name()).Msg("client disconnected")
	s.broadcast(l, c, &Message{Type: MessageTypeLeave, Sender: m.Name()})
}

func (s *Server) MessageReceived(l *server.Listener, c *server.Connection, msg string) {
	m := memberOf(c)
	if m.Named() {
		s.log.Info().Str("name", m.Name()).Str("msg", msg).Msg("says")
		s.broadcast(l, c, &Message{Type: MessageTypeText, Sender: m.Name(), Content: msg})
		return
	}

	name := strings.TrimSpace(msg)
	// The list names everyone already in the room, not the newcomer.
	welcome := "Welcome " + name + ", these are the connected users: " + strings.Join(s.hub.Names(), ", ")
	s.hub.Join(c, name)
	s.log.Info().Str("name", name).Stringer("conn", c).Msg("client joined")

	s.send(l, c, &Message{Type: MessageTypeSystem, Content: welcome})
	s.broadcast(l, c, &Message{Type: MessageTypeJoin, Sender: name})
}

func (s *Server) send(l *server.Listener, c *server.Connection, m *Message) {
	frame, err := m.Encode()
	if err != nil {
		s.log.Error().Err(err).Msg("failed to encode message")
		return
	}
	_ = l.Send(c, frame)
}

// broadcast sends m to every connection except the sender.
func (s *Server) broadcast(l *server.Listener, from *server.Connection, m *Message) {
	frame, err := m.Encode()
	if err != nil {
		s.log.Error().Err(err).Msg("failed to encode message")
		return
	}
	if _, err := l.Broadcast(frame, from); err != nil {
		s.log.Warn().Err(err).Msg("broadcast incomplete")
	}
}
