// Package acdconfig handles TOML configuration parsing for the acdprobe
// demo binary. The ACD core itself takes no config file; this just picks an
// interface, a candidate address pool, and a log level for one run.
package acdconfig

import (
	"fmt"
	"net"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration for cmd/acdprobe.
type Config struct {
	Interface string   `toml:"interface"`
	Addresses []string `toml:"addresses"`
	LogLevel  string   `toml:"log_level"`
}

// Load reads and parses a TOML config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

func validate(cfg *Config) error {
	if cfg.Interface == "" {
		return fmt.Errorf("interface must be set")
	}
	if len(cfg.Addresses) == 0 {
		return fmt.Errorf("at least one address is required")
	}
	for _, a := range cfg.Addresses {
		if net.ParseIP(a).To4() == nil {
			return fmt.Errorf("address %q is not a valid IPv4 address", a)
		}
	}
	return nil
}
