package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/omochice/framed-socket/internal/config"
	"github.com/omochice/framed-socket/internal/httpserver"
	"github.com/omochice/framed-socket/internal/logging"
	"github.com/omochice/framed-socket/internal/server"
)

func main() {
	configPath := flag.String("config", "", "Path to a TOML config file")
	host := flag.String("host", "", "Address to bind")
	port := flag.Int("port", 0, "Port to listen on")
	root := flag.String("root", "", "Static content directory")
	errorFile := flag.String("error-file", "", "Content file served with 404 responses")
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
			cfg.HTTP.Host = *host
		case "port":
			cfg.HTTP.Port = *port
		case "root":
			cfg.HTTP.ContentRoot = *root
		case "error-file":
			cfg.HTTP.ErrorFile = *errorFile
		case "commands":
			cfg.HTTP.Commands = *commands
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{App: "http-server", Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	srv, err := httpserver.Open(cfg.HTTP.ContentRoot,
		httpserver.WithErrorFile(cfg.HTTP.ErrorFile),
		httpserver.WithLogger(logger),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("http server")
	}
	defer srv.Close()

	srv.Handle("/", func(_ *server.Connection, r *httpserver.Request) {
		if err := r.ReadText("index.html"); err != nil {
			r.SetStatus(404)
			r.Write("404 Not Found")
		}
	})

	opts := append(httpserver.ListenerOptions(),
		server.WithAddress(cfg.HTTP.Addr()),
		server.WithPacketSize(cfg.HTTP.PacketSize),
		server.WithLogger(logger),
	)
	if cfg.HTTP.Commands {
		opts = append(opts, server.WithCommands(os.Stdin))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.New(srv, opts...).Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("http server")
	}
	log.Info().Msg("http server stopped")
}
