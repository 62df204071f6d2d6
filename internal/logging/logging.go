// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLevel = "FRAMED_LOG_LEVEL"
	EnvJSON  = "FRAMED_LOG_JSON"
)

// Config selects level and output format. Environment variables EnvLevel
// and EnvJSON take precedence over the fields.
type Config struct {
	App   string
	Level string
	JSON  bool
	Out   io.Writer
}

// New builds a logger from cfg and installs it as the global log.Logger.
func New(cfg Config) (zerolog.Logger, error) {
	if v, ok := os.LookupEnv(EnvLevel); ok {
		cfg.Level = v
	}
	if v, ok := os.LookupEnv(EnvJSON); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("parse %s: %w", EnvJSON, err)
		}
		cfg.JSON = b
	}

	level := zerolog.InfoLevel
	if s := strings.TrimSpace(cfg.Level); s != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(s))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("parse log level: %w", err)
		}
		level = l
	}

	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	if !cfg.JSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if cfg.App != "" {
		ctx = ctx.Str("app", cfg.App)
	}
	logger := ctx.Logger()
	log.Logger = logger
	return logger, nil
}
