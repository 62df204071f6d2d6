package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omochice/framed-socket/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "framed.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_EmptyPathIsDefault(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, config.Default(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Overlay(t *testing.T) {
	path := writeConfig(t, `
[log]
level = "debug"

[server]
port = 6000
commands = false
transport = "ws"

[client]
address = "ws://127.0.0.1:6000/"
dial_timeout = "3s"

[http]
content_root = "/srv/www"
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	want := config.Default()
	want.Log.Level = "debug"
	want.Server.Port = 6000
	want.Server.Commands = false
	want.Server.Transport = "ws"
	want.Client.Address = "ws://127.0.0.1:6000/"
	want.Client.DialTimeout = 3 * time.Second
	want.HTTP.ContentRoot = "/srv/www"
	require.Equal(t, want, cfg)

	require.Equal(t, "127.0.0.1:6000", cfg.Server.Addr())
	require.Equal(t, "127.0.0.1:8080", cfg.HTTP.Addr())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"syntax", "[server\nport = 1"},
		{"unknown key", "[server]\nbogus = 1\n"},
		{"bad duration", "[client]\ndial_timeout = \"soon\"\n"},
		{"bad port", "[server]\nport = 70000\n"},
		{"bad transport", "[server]\ntransport = \"udp\"\n"},
		{"zero packet size", "[http]\npacket_size = 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestValidate_JoinsErrors(t *testing.T) {
	cfg := config.Default()
	cfg.Server.PacketSize = 0
	cfg.Client.Address = ""

	err := cfg.Validate()
	require.ErrorContains(t, err, "server.packet_size")
	require.ErrorContains(t, err, "client.address")
}
