package config

import (
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/aceteam-ai/ilocalserver/internal/lifecycle"
)

// Validate checks configuration correctness. It does not modify cfg.
func Validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range 1-65535", cfg.Server.Port)
	}
	if cfg.Server.BindAddress != "" && net.ParseIP(cfg.Server.BindAddress) == nil {
		return fmt.Errorf("server.bind_address %q is not an IP address", cfg.Server.BindAddress)
	}

	timeouts := []struct {
		key string
		d   time.Duration
	}{
		{"server.read_timeout", cfg.Server.ReadTimeout},
		{"server.write_timeout", cfg.Server.WriteTimeout},
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeout},
		{"telemetry.timeout", cfg.Telemetry.Timeout},
	}
	for _, t := range timeouts {
		if t.d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", t.key, t.d)
		}
	}

	if cfg.Mode != "" && cfg.Mode != ModeAuto {
		if _, err := lifecycle.ParseRunMode(cfg.Mode); err != nil {
			return fmt.Errorf("mode: %w", err)
		}
	}

	if cfg.Control.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Control.Address); err != nil {
			return fmt.Errorf("control.address %q: %w", cfg.Control.Address, err)
		}
	}

	switch cfg.Reboot.Method {
	case RebootCommand:
		if len(cfg.Reboot.Command) == 0 || cfg.Reboot.Command[0] == "" {
			return fmt.Errorf("reboot.command must not be empty when reboot.method is %q", RebootCommand)
		}
	case RebootSyscall:
	default:
		return fmt.Errorf("reboot.method %q must be %q or %q", cfg.Reboot.Method, RebootCommand, RebootSyscall)
	}

	if cfg.Redis.URL != "" {
		if _, err := url.Parse(cfg.Redis.URL); err != nil {
			return fmt.Errorf("redis.url: %w", err)
		}
	}

	return nil
}

// BootMode resolves the configured mode. "auto" or an empty mode defers to
// lifecycle.BootMode.
func (c *Config) BootMode(privileged bool) (lifecycle.RunMode, error) {
	if c.Mode == "" || c.Mode == ModeAuto {
		return lifecycle.BootMode(c.Elevated.Enabled, privileged), nil
	}
	return lifecycle.ParseRunMode(c.Mode)
}
