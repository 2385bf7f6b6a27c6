// Package config loads the client configuration from a TOML file.
//
// Values missing from the file keep their defaults; Validate normalises
// anything out of range instead of failing.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	mandel "github.com/marben/mandel_remote"
	"github.com/marben/mandel_remote/channel"
)

// Config is the complete client configuration.
type Config struct {
	Backend   BackendConfig   `toml:"backend"`
	Viewport  ViewportConfig  `toml:"viewport"`
	Reconnect ReconnectConfig `toml:"reconnect"`
	Log       LogConfig       `toml:"log"`
}

// BackendConfig holds the websocket URLs of the three channels.
type BackendConfig struct {
	ParamsURL  string `toml:"params_url"`
	FramesURL  string `toml:"frames_url"`
	GestureURL string `toml:"gesture_url"`
	// FrameReadLimit is the largest accepted frame message in bytes.
	FrameReadLimit int64 `toml:"frame_read_limit"`
}

type ViewportConfig struct {
	WheelSensitivity float64       `toml:"wheel_sensitivity"`
	ColorSchemeDelay time.Duration `toml:"color_scheme_delay"`
	MaxIterations    int           `toml:"max_iterations"`
	ColorScheme      string        `toml:"color_scheme"`
}

// ReconnectConfig controls exponential backoff after a dropped connection.
type ReconnectConfig struct {
	Enabled     bool          `toml:"enabled"`
	Initial     time.Duration `toml:"initial"`
	Max         time.Duration `toml:"max"`
	MaxAttempts int           `toml:"max_attempts"`
}

type LogConfig struct {
	Verbose bool `toml:"verbose"`
}

// Default returns the built-in configuration, pointing at a backend on localhost.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			ParamsURL:      "ws://localhost:8080/params",
			FramesURL:      "ws://localhost:8080/frames",
			GestureURL:     "ws://localhost:8080/gesture",
			FrameReadLimit: channel.DefaultFrameReadLimit,
		},
		Viewport: ViewportConfig{
			WheelSensitivity: mandel.DefaultWheelSensitivity,
			ColorSchemeDelay: mandel.DefaultColorSchemeDelay,
			MaxIterations:    mandel.DefaultIterations,
			ColorScheme:      mandel.DefaultColorScheme,
		},
		Reconnect: ReconnectConfig{
			Enabled:     true,
			Initial:     500 * time.Millisecond,
			Max:         30 * time.Second,
			MaxAttempts: 0,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	cfg.Validate()
	return cfg, nil
}

// Save writes cfg to path, creating parent directories.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}

// Validate replaces invalid values with defaults.
func (c *Config) Validate() {
	d := Default()
	if c.Backend.ParamsURL == "" {
		c.Backend.ParamsURL = d.Backend.ParamsURL
	}
	if c.Backend.FramesURL == "" {
		c.Backend.FramesURL = d.Backend.FramesURL
	}
	if c.Backend.GestureURL == "" {
		c.Backend.GestureURL = d.Backend.GestureURL
	}
	if c.Backend.FrameReadLimit <= 0 {
		c.Backend.FrameReadLimit = d.Backend.FrameReadLimit
	}
	if c.Viewport.WheelSensitivity <= 0 {
		c.Viewport.WheelSensitivity = d.Viewport.WheelSensitivity
	}
	if c.Viewport.ColorSchemeDelay <= 0 {
		c.Viewport.ColorSchemeDelay = d.Viewport.ColorSchemeDelay
	}
	c.Viewport.MaxIterations = max(mandel.MinIterations, min(c.Viewport.MaxIterations, mandel.MaxIterations))
	if c.Viewport.ColorScheme == "" {
		c.Viewport.ColorScheme = d.Viewport.ColorScheme
	}
	if c.Reconnect.Initial <= 0 {
		c.Reconnect.Initial = d.Reconnect.Initial
	}
	if c.Reconnect.Max < c.Reconnect.Initial {
		c.Reconnect.Max = c.Reconnect.Initial
	}
	if c.Reconnect.MaxAttempts < 0 {
		c.Reconnect.MaxAttempts = 0
	}
}

// Endpoints returns the channel URLs.
func (c *Config) Endpoints() channel.Endpoints {
	return channel.Endpoints{
		Params:  c.Backend.ParamsURL,
		Frames:  c.Backend.FramesURL,
		Gesture: c.Backend.GestureURL,
	}
}

// Backoff returns the reconnect policy; the zero policy when disabled.
func (c *Config) Backoff() channel.Backoff {
	if !c.Reconnect.Enabled {
		return channel.Backoff{}
	}
	return channel.Backoff{
		Initial:     c.Reconnect.Initial,
		Max:         c.Reconnect.Max,
		MaxAttempts: c.Reconnect.MaxAttempts,
	}
}

// ChannelOptions returns the channel options described by c.
func (c *Config) ChannelOptions() []channel.Option {
	return []channel.Option{
		channel.WithBackoff(c.Backoff()),
		channel.WithVerbose(c.Log.Verbose),
		channel.WithReadLimit(c.Backend.FrameReadLimit),
	}
}

// ViewportOptions returns the viewport options described by c.
func (c *Config) ViewportOptions() []mandel.ViewportOption {
	return []mandel.ViewportOption{
		mandel.WithWheelSensitivity(c.Viewport.WheelSensitivity),
		mandel.WithColorSchemeDelay(c.Viewport.ColorSchemeDelay),
		mandel.WithIterations(c.Viewport.MaxIterations),
		mandel.WithColorScheme(c.Viewport.ColorScheme),
	}
}
