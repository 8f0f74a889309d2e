// Package config loads the ilocalserver YAML configuration.
//
// Load starts from Default and overlays the file, so a config file only needs
// the keys it changes.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aceteam-ai/ilocalserver/internal/platform"
)

// FileName is the config file looked up in platform.ConfigDir().
const FileName = "config.yaml"

// Reboot methods.
const (
	RebootCommand = "command"
	RebootSyscall = "syscall"
)

// ModeAuto picks the boot mode from elevated.enabled and the process privilege.
const ModeAuto = "auto"

// Config is the full configuration file.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Control   ControlConfig   `yaml:"control"`
	Mode      string          `yaml:"mode"`
	Elevated  ElevatedConfig  `yaml:"elevated"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Reboot    RebootConfig    `yaml:"reboot"`
	Redis     RedisConfig     `yaml:"redis"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// ServerConfig configures the diagnostic HTTP server.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	BindAddress     string        `yaml:"bind_address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ControlConfig configures the loopback control API.
type ControlConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// ElevatedConfig controls whether the elevated mode may be entered at boot.
type ElevatedConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TelemetryConfig tunes the metric sources.
type TelemetryConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	ThermalZone    string        `yaml:"thermal_zone"`
	PowerSupplyDir string        `yaml:"power_supply_dir"`
}

// RebootConfig selects how /restart reboots the host.
type RebootConfig struct {
	Method       string   `yaml:"method"`
	Command      []string `yaml:"command"`
	ElevatedOnly bool     `yaml:"elevated_only"`
}

// RedisConfig enables mirroring status events to Redis. Empty URL disables it.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	Channel  string `yaml:"channel"`
	Stream   string `yaml:"stream"`
	NodeID   string `yaml:"node_id"`
}

// NotifyConfig toggles desktop notifications in foreground mode.
type NotifyConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Control: ControlConfig{
			Enabled: true,
			Address: "127.0.0.1:8081",
		},
		Mode:     ModeAuto,
		Elevated: ElevatedConfig{Enabled: true},
		Telemetry: TelemetryConfig{
			Timeout:        2 * time.Second,
			ThermalZone:    "/sys/class/thermal/thermal_zone0/temp",
			PowerSupplyDir: "/sys/class/power_supply",
		},
		Reboot: RebootConfig{
			Method:  RebootCommand,
			Command: append([]string(nil), platform.DefaultRebootCommand...),
		},
		Redis: RedisConfig{
			Stream: "ilocalserver:status:stream",
		},
		Notify: NotifyConfig{Enabled: true},
	}
}

// DefaultPath returns the config file path in the platform config dir.
func DefaultPath() string {
	return filepath.Join(platform.ConfigDir(), FileName)
}

// Load reads path over the defaults and validates the result. An empty path
// loads DefaultPath if it exists and the defaults otherwise.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// no config file; defaults apply
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg as YAML, creating the parent directory.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
