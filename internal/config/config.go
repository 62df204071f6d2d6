// Package config loads process settings from a TOML file on top of
// built-in defaults.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/omochice/framed-socket/pkg/protocol"
)

type LogConfig struct {
	Level string
	JSON  bool
}

type ServerConfig struct {
	Host         string
	Port         int
	PacketSize   int
	MaxFrameSize int
	Commands     bool
	Transport    string
}

// Addr returns host:port for net.Listen.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

type ClientConfig struct {
	Address      string
	PacketSize   int
	MaxFrameSize int
	Input        bool
	DialTimeout  time.Duration
}

type HTTPConfig struct {
	Host        string
	Port        int
	PacketSize  int
	Commands    bool
	ContentRoot string
	ErrorFile   string
}

// Addr returns host:port for net.Listen.
func (c HTTPConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

type Config struct {
	Log    LogConfig
	Server ServerConfig
	Client ClientConfig
	HTTP   HTTPConfig
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         5500,
			PacketSize:   protocol.DefaultPacketSize,
			MaxFrameSize: protocol.DefaultMaxFrameSize,
			Commands:     true,
			Transport:    "tcp",
		},
		Client: ClientConfig{
			Address:      "127.0.0.1:5500",
			PacketSize:   protocol.DefaultPacketSize,
			MaxFrameSize: protocol.DefaultMaxFrameSize,
			Input:        true,
			DialTimeout:  10 * time.Second,
		},
		HTTP: HTTPConfig{
			Host:        "127.0.0.1",
			Port:        8080,
			PacketSize:  1024,
			Commands:    true,
			ContentRoot: "content",
			ErrorFile:   "error.html",
		},
	}
}

type fileConfig struct {
	Log struct {
		Level string `toml:"level"`
		JSON  bool   `toml:"json"`
	} `toml:"log"`
	Server struct {
		Host         string `toml:"host"`
		Port         int    `toml:"port"`
		PacketSize   int    `toml:"packet_size"`
		MaxFrameSize int    `toml:"max_frame_size"`
		Commands     bool   `toml:"commands"`
		Transport    string `toml:"transport"`
	} `toml:"server"`
	Client struct {
		Address      string `toml:"address"`
		PacketSize   int    `toml:"packet_size"`
		MaxFrameSize int    `toml:"max_frame_size"`
		Input        bool   `toml:"input"`
		DialTimeout  string `toml:"dial_timeout"`
	} `toml:"client"`
	HTTP struct {
		Host        string `toml:"host"`
		Port        int    `toml:"port"`
		PacketSize  int    `toml:"packet_size"`
		Commands    bool   `toml:"commands"`
		ContentRoot string `toml:"content_root"`
		ErrorFile   string `toml:"error_file"`
	} `toml:"http"`
}

// Load reads path over Default. Keys absent from the file keep their
// default; unknown keys are an error. An empty path yields Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("load config: unknown keys %s", strings.Join(keys, ", "))
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "json") {
		cfg.Log.JSON = raw.Log.JSON
	}

	if meta.IsDefined("server", "host") {
		cfg.Server.Host = strings.TrimSpace(raw.Server.Host)
	}
	if meta.IsDefined("server", "port") {
		cfg.Server.Port = raw.Server.Port
	}
	if meta.IsDefined("server", "packet_size") {
		cfg.Server.PacketSize = raw.Server.PacketSize
	}
	if meta.IsDefined("server", "max_frame_size") {
		cfg.Server.MaxFrameSize = raw.Server.MaxFrameSize
	}
	if meta.IsDefined("server", "commands") {
		cfg.Server.Commands = raw.Server.Commands
	}
	if meta.IsDefined("server", "transport") {
		cfg.Server.Transport = strings.TrimSpace(raw.Server.Transport)
	}

	if meta.IsDefined("client", "address") {
		cfg.Client.Address = strings.TrimSpace(raw.Client.Address)
	}
	if meta.IsDefined("client", "packet_size") {
		cfg.Client.PacketSize = raw.Client.PacketSize
	}
	if meta.IsDefined("client", "max_frame_size") {
		cfg.Client.MaxFrameSize = raw.Client.MaxFrameSize
	}
	if meta.IsDefined("client", "input") {
		cfg.Client.Input = raw.Client.Input
	}
	if meta.IsDefined("client", "dial_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Client.DialTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse client.dial_timeout: %w", err)
		}
		cfg.Client.DialTimeout = d
	}

	if meta.IsDefined("http", "host") {
		cfg.HTTP.Host = strings.TrimSpace(raw.HTTP.Host)
	}
	if meta.IsDefined("http", "port") {
		cfg.HTTP.Port = raw.HTTP.Port
	}
	if meta.IsDefined("http", "packet_size") {
		cfg.HTTP.PacketSize = raw.HTTP.PacketSize
	}
	if meta.IsDefined("http", "commands") {
		cfg.HTTP.Commands = raw.HTTP.Commands
	}
	if meta.IsDefined("http", "content_root") {
		cfg.HTTP.ContentRoot = strings.TrimSpace(raw.HTTP.ContentRoot)
	}
	if meta.IsDefined("http", "error_file") {
		cfg.HTTP.ErrorFile = strings.TrimSpace(raw.HTTP.ErrorFile)
	}

	return cfg, cfg.Validate()
}

// Validate reports every out-of-range setting.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(validPort(c.Server.Port), "server.port %d out of range", c.Server.Port)
	check(c.Server.PacketSize > 0, "server.packet_size must be positive")
	check(c.Server.MaxFrameSize >= 0, "server.max_frame_size must not be negative")
	switch c.Server.Transport {
	case "tcp", "ws", "auto":
	default:
		errs = append(errs, fmt.Errorf("server.transport %q must be tcp, ws or auto", c.Server.Transport))
	}

	check(c.Client.Address != "", "client.address must be set")
	check(c.Client.PacketSize > 0, "client.packet_size must be positive")
	check(c.Client.MaxFrameSize >= 0, "client.max_frame_size must not be negative")
	check(c.Client.DialTimeout >= 0, "client.dial_timeout must not be negative")

	check(validPort(c.HTTP.Port), "http.port %d out of range", c.HTTP.Port)
	check(c.HTTP.PacketSize > 0, "http.packet_size must be positive")
	check(c.HTTP.ContentRoot != "", "http.content_root must be set")

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func validPort(p int) bool {
	return p >= 0 && p <= 65535
}
