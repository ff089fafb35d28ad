// Package config resolves the busd configuration from three layers:
// built-in defaults, an optional TOML file, and command-line flags. The
// layers merge with flags strongest; the resolved Config value is threaded
// into the transports instead of living in process globals.
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/BurntSushi/toml"

	"github.com/bioloid-tools/bridge/internal/bus"
)

// DefaultFile is the config file consulted when -c is not given. A missing
// default file is fine; a missing explicitly named one is an error.
const DefaultFile = "busd.toml"

// Config is the resolved busd configuration.
type Config struct {
	// Port is the TCP listen port for the network transport.
	Port int
	// Serial selects the serial transport when non-empty: the device path.
	Serial string
	// Baud is the serial line rate.
	Baud int
	// Debug enables hex dumps of packets and replies.
	Debug bool
	// Verbose enables debug-level log output.
	Verbose bool
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port: bus.DefaultPort,
		Baud: bus.DefaultBaud,
	}
}

type fileConfig struct {
	Port    int    `toml:"port"`
	Serial  string `toml:"serial"`
	Baud    int    `toml:"baud"`
	Debug   bool   `toml:"debug"`
	Verbose bool   `toml:"verbose"`
}

// Load overlays the TOML file at path onto the defaults. Only keys present
// in the file override; absent keys keep their defaults. When explicit is
// false (the built-in default path) a missing file yields plain defaults.
func Load(path string, explicit bool) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}

	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("serial") {
		cfg.Serial = raw.Serial
	}
	if meta.IsDefined("baud") {
		cfg.Baud = raw.Baud
	}
	if meta.IsDefined("debug") {
		cfg.Debug = raw.Debug
	}
	if meta.IsDefined("verbose") {
		cfg.Verbose = raw.Verbose
	}
	return cfg, nil
}

// Validate rejects values no transport can use.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range 1-65535", c.Port)
	}
	if c.Baud <= 0 {
		return fmt.Errorf("baud rate %d must be positive", c.Baud)
	}
	return nil
}

// Addr is the TCP listen address derived from Port.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// SerialMode reports whether a serial device path was configured.
func (c Config) SerialMode() bool {
	return c.Serial != ""
}
