package server

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/omochice/framed-socket/pkg/protocol"
)

// Transport selects how accepted sockets carry the framed stream.
type Transport string

const (
	TransportTCP       Transport = "tcp"
	TransportWebSocket Transport = "ws"

	// TransportAuto accepts both on one port: peers that open with an HTTP
	// request line are upgraded to WebSocket, everything else is plain TCP.
	TransportAuto Transport = "auto"
)

type options struct {
	address      string
	packetSize   int
	maxFrameSize int
	rawReads     bool
	transport    Transport
	commands     bool
	commandInput io.Reader
	logger       zerolog.Logger
}

func defaultOptions() options {
	return options{
		address:      ":0",
		packetSize:   protocol.DefaultPacketSize,
		maxFrameSize: protocol.DefaultMaxFrameSize,
		transport:    TransportTCP,
		commandInput: os.Stdin,
		logger:       log.Logger,
	}
}

// Option configures a Listener.
type Option func(*options)

// WithAddress sets the host:port to bind.
func WithAddress(addr string) Option {
	return func(o *options) { o.address = addr }
}

// WithPacketSize sets the number of bytes moved per socket read or write.
func WithPacketSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.packetSize = n
		}
	}
}

// WithMaxFrameSize bounds the receive accumulator of every connection.
// Zero disables the bound.
func WithMaxFrameSize(n int) Option {
	return func(o *options) { o.maxFrameSize = n }
}

// WithRawReads delivers every socket read as one message instead of
// waiting for the frame terminator.
func WithRawReads() Option {
	return func(o *options) { o.rawReads = true }
}

// WithTransport selects plain TCP, WebSocket or auto-detected carriage.
func WithTransport(t Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithCommands enables the command loop reading lines from r.
// A nil r reads standard input.
func WithCommands(r io.Reader) Option {
	return func(o *options) {
		o.commands = true
		if r != nil {
			o.commandInput = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}
