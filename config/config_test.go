package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	require.Equal(t, Config{Daemon: false, Port: defaultPort, Camera: defaultCamera}, cfg)
}

func TestParseLongAndShortFlags(t *testing.T) {
	cfg, err := Parse([]string{"--camera", "/dev/video1", "-p", "9090", "-d"})
	require.NoError(t, err)
	require.Equal(t, Config{Daemon: true, Port: 9090, Camera: "/dev/video1"}, cfg)
}

func TestParseClampsPort(t *testing.T) {
	cfg, err := Parse([]string{"--port", "0"})
	require.NoError(t, err)
	require.Equal(t, 1, cfg.Port)

	cfg, err = Parse([]string{"--port", "70000"})
	require.NoError(t, err)
	require.Equal(t, 65535, cfg.Port)
}

func TestParseRejectsUnknownFlag(t *testing.T) {
	_, err := Parse([]string{"--bogus"})
	require.Error(t, err)
}
