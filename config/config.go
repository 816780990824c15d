// Package config handles remoteplot.toml worker configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the worker process configuration.
type Config struct {
	Window Window `toml:"window"`
	Render Render `toml:"render"`
	Log    Log    `toml:"log"`
}

// Window configures the native window.
type Window struct {
	Title  string `toml:"title"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
	Theme  string `toml:"theme"`
}

// Render configures drawing behavior.
type Render struct {
	MinRenderPeriodMS int `toml:"min-render-period-ms"`
}

// Log configures logging output.
type Log struct {
	File      string `toml:"file"`
	Verbosity int    `toml:"verbosity"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Window: Window{
			Title:  "remoteplot",
			Width:  800,
			Height: 600,
			Theme:  "dark",
		},
		Render: Render{MinRenderPeriodMS: 50},
		Log:    Log{Verbosity: 0},
	}
}

// Load parses a TOML configuration file, applying defaults for anything the
// file leaves unset.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the worker cannot run with.
func (c *Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return fmt.Errorf("config: window size %dx%d is not positive", c.Window.Width, c.Window.Height)
	}
	switch c.Window.Theme {
	case "light", "dark":
	default:
		return fmt.Errorf("config: theme must be \"light\" or \"dark\", got %q", c.Window.Theme)
	}
	if c.Render.MinRenderPeriodMS < 0 {
		return fmt.Errorf("config: min-render-period-ms must not be negative")
	}
	return nil
}

// MinRenderPeriod returns the coalescing period as a duration.
func (c *Config) MinRenderPeriod() time.Duration {
	return time.Duration(c.Render.MinRenderPeriodMS) * time.Millisecond
}
