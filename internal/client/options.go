package client

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/omochice/framed-socket/pkg/protocol"
)

type options struct {
	address      string
	packetSize   int
	maxFrameSize int
	dialTimeout  time.Duration
	input        bool
	inputReader  io.Reader
	logger       zerolog.Logger
}

func defaultOptions() options {
	return options{
		address:      "localhost:5500",
		packetSize:   protocol.DefaultPacketSize,
		maxFrameSize: protocol.DefaultMaxFrameSize,
		dialTimeout:  10 * time.Second,
		inputReader:  os.Stdin,
		logger:       log.Logger,
	}
}

// Option configures a Client.
type Option func(*options)

// WithAddress sets the server to connect to: host:port for TCP or a
// ws:// URL for WebSocket carriage.
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

// WithMaxFrameSize bounds the receive accumulator. Zero disables the bound.
func WithMaxFrameSize(n int) Option {
	return func(o *options) { o.maxFrameSize = n }
}

// WithDialTimeout bounds connection establishment.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// WithInput enables the local input loop reading lines from r.
// A nil r reads standard input.
func WithInput(r io.Reader) Option {
	return func(o *options) {
		o.input = true
		if r != nil {
			o.inputReader = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}
