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
	"github.com/omochice/framed-socket/internal/config"
	"github.com/omochice/framed-socket/internal/logging"
	"github.com/omochice/framed-socket/internal/server"
)

func main() {
	configPath := flag.String("config", "", "Path to a TOML config file")
	host := flag.String("host", "", "Address to bind")
	port := flag.Int("port", 0, "Port to listen on")
	packetSize := flag.Int("packet-size", 0, "Bytes per socket read and write")
	transport := flag.String("transport", "", "Carriage: tcp, ws or auto")
	commands := flag.Bool("commands", true, "Read control commands (\"stop\") from stdin")
	logLevel := flag.String("log-level", "", "Log level")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Server.Host = *host
		case "port":
			cfg.Server.Port = *port
		case "packet-size":
			cfg.Server.PacketSize = *packetSize
		case "transport":
			cfg.Server.Transport = *transport
		case "commands":
			cfg.Server.Commands = *commands
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{App: "chat-server", Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	opts := []server.Option{
		server.WithAddress(cfg.Server.Addr()),
		server.WithPacketSize(cfg.Server.PacketSize),
		server.WithMaxFrameSize(cfg.Server.MaxFrameSize),
		server.WithTransport(server.Transport(cfg.Server.Transport)),
		server.WithLogger(logger),
	}
	if cfg.Server.Commands {
		opts = append(opts, server.WithCommands(os.Stdin))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l := server.New(chat.NewServer(logger), opts...)
	if err := l.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("chat server stopped")
}
