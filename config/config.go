// Package config parses the server's CLI flags into a plain struct,
// independently of os.Args, following the teacher's flag-per-field style
// (examples/colorspace, examples/video_outputs) but using pflag so each
// option carries both a --long and a -short spelling.
package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Config holds the three core CLI options (§6). All are optional.
type Config struct {
	// Daemon is accepted and ignored; daemonizing is out of scope for the core.
	Daemon bool
	Port   int
	Camera string
}

const (
	defaultPort   = 8080
	defaultCamera = "/dev/video0"
)

// Parse builds a Config from args (typically os.Args[1:]). Port is clamped
// to [1, 65535] rather than rejected, matching §6's "clamped" wording.
func Parse(args []string) (Config, error) {
	fs := pflag.NewFlagSet("mjpgd", pflag.ContinueOnError)

	daemon := fs.BoolP("daemon", "d", false, "daemonize (accepted, currently a no-op)")
	port := fs.IntP("port", "p", defaultPort, "TCP port to listen on")
	camera := fs.StringP("camera", "c", defaultCamera, "path to the V4L2 device")

	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	cfg := Config{Daemon: *daemon, Port: clampPort(*port), Camera: *camera}
	return cfg, nil
}

func clampPort(p int) int {
	switch {
	case p < 1:
		return 1
	case p > 65535:
		return 65535
	default:
		return p
	}
}
