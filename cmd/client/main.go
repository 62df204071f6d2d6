package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/omochice/framed-socket/internal/chat"
	"github.com/omochice/framed-socket/internal/client"
	"github.com/omochice/framed-socket/internal/config"
	"github.com/omochice/framed-socket/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "Path to a TOML config file")
	serverAddr := flag.String("server", "", "Server address (host:port, or ws://host:port/ for WebSocket)")
	packetSize := flag.Int("packet-size", 0, "Bytes per socket read and write")
	logLevel := flag.String("log-level", "", "Log level")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "server":
			cfg.Client.Address = *serverAddr
		case "packet-size":
			cfg.Client.PacketSize = *packetSize
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{App: "chat-client", Level: cfg.Log.Level, JSON: cfg.Log.JSON, Out: os.Stderr})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	opts := []client.Option{
		client.WithAddress(cfg.Client.Address),
		client.WithPacketSize(cfg.Client.PacketSize),
		client.WithMaxFrameSize(cfg.Client.MaxFrameSize),
		client.WithDialTimeout(cfg.Client.DialTimeout),
		client.WithLogger(logger),
	}
	if cfg.Client.Input {
		opts = append(opts, client.WithInput(os.Stdin))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(chat.NewClient(os.Stdout), opts...)
	if err := c.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("connect")
	}

	select {
	case <-ctx.Done():
		c.Disconnect()
	case <-c.InputDone():
		// \quit or end of stdin.
		c.Disconnect()
	case <-c.Done():
	}
}
