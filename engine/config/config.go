package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

type StudioConfig struct {
	Name     string `toml:"name"`
	GameRoot string `toml:"game_root"`
	// ModRoot shadows GameRoot and receives saved files. Empty saves in place.
	ModRoot  string `toml:"mod_root"`
	LogLevel string `toml:"log_level"`
	// Headless runs without a window or a GPU device.
	Headless  bool `toml:"headless"`
	DebugDump bool `toml:"debug_dump"`
	// Maps loaded on startup.
	Maps []string `toml:"maps,omitempty"`
}

type LoaderConfig struct {
	Workers     int  `toml:"workers"`
	QueueSize   int  `toml:"queue_size"`
	WatchAssets bool `toml:"watch_assets"`
}

type TexturesConfig struct {
	PoolName string `toml:"pool_name"`
	PoolSize uint32 `toml:"pool_size"`
}

type WindowConfig struct {
	X      uint32 `toml:"x"`
	Y      uint32 `toml:"y"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type StatusConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// Config is the studio configuration file.
type Config struct {
	Studio   StudioConfig   `toml:"studio"`
	Loader   LoaderConfig   `toml:"loader"`
	Textures TexturesConfig `toml:"textures"`
	Window   WindowConfig   `toml:"window"`
	Status   StatusConfig   `toml:"status"`
}

func Default() *Config {
	return &Config{
		Studio: StudioConfig{
			Name:     "Map Studio",
			GameRoot: ".",
			LogLevel: "info",
		},
		Loader: LoaderConfig{
			Workers:   4,
			QueueSize: 64,
		},
		Textures: TexturesConfig{
			PoolName: "map",
			PoolSize: 4096,
		},
		Window: WindowConfig{
			X:      100,
			Y:      100,
			Width:  1280,
			Height: 720,
		},
		Status: StatusConfig{
			Addr: "127.0.0.1:7410",
		},
	}
}

// Load reads the file at path over the defaults. Keys missing from the file
// keep their default value.
func Load(path string) (*Config, error) {
	c := Default()
	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()

	dec := toml.NewDecoder(bufio.NewReader(fp))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return nil, fmt.Errorf("error reading configuration %q: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration %q: %w", path, err)
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.Studio.GameRoot == "" {
		return fmt.Errorf("studio.game_root is required")
	}
	switch c.Studio.LogLevel {
	case "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("studio.log_level %q is not a log level", c.Studio.LogLevel)
	}
	if c.Loader.Workers < 1 {
		return fmt.Errorf("loader.workers must be at least 1, got %d", c.Loader.Workers)
	}
	if c.Loader.QueueSize < 0 {
		return fmt.Errorf("loader.queue_size cannot be negative")
	}
	if c.Textures.PoolSize == 0 {
		return fmt.Errorf("textures.pool_size must be at least 1")
	}
	if !c.Studio.Headless && (c.Window.Width == 0 || c.Window.Height == 0) {
		return fmt.Errorf("window size %dx%d is empty", c.Window.Width, c.Window.Height)
	}
	if c.Status.Enabled && c.Status.Addr == "" {
		return fmt.Errorf("status.addr is required when the status server is enabled")
	}
	return nil
}

func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("error creating %q directory: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing to configuration file: %w", err)
	}
	return nil
}
