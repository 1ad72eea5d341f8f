package renderer

import (
	"bytes"
	"fmt"
	"os"

	"github.com/Carmen-Shannon/oxy-gfx/common"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/staging"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/technique"
	"github.com/gogpu/gputypes"
	"github.com/pelletier/go-toml/v2"
)

const (
	// DefaultBackBufferCount is the number of frames the CPU may record ahead of the GPU.
	DefaultBackBufferCount = 2
	// MaxBackBufferCount bounds the swapchain length a config may ask for.
	MaxBackBufferCount = 4
)

// Config is the file based device configuration. Zero fields take the defaults of DefaultConfig.
type Config struct {
	// BackBufferCount is the swapchain length and the number of frame contexts.
	BackBufferCount int `toml:"back_buffer_count"`
	// StagingCapacity is the staging ring size in bytes; it must be a power of two.
	StagingCapacity uint64 `toml:"staging_capacity"`
	// BlobRoot is the directory compiled technique, texture and model blobs are cached below.
	BlobRoot string `toml:"blob_root"`
	// PresentMode is one of "fifo", "fifo_relaxed", "mailbox" or "immediate".
	PresentMode string `toml:"present_mode"`
	// HotReload watches loaded technique files and reloads them at the next BeginFrame.
	HotReload bool `toml:"hot_reload"`
	// IncludeDir is the directory technique include annotations resolve against.
	IncludeDir string `toml:"include_dir"`
	// Width and Height size the back buffers when the device has no window.
	Width  int `toml:"width"`
	Height int `toml:"height"`
	// ForceFallbackAdapter asks the WebGPU backend for the software adapter.
	ForceFallbackAdapter bool `toml:"force_fallback_adapter"`
}

// DefaultConfig returns the configuration used when no file is loaded.
func DefaultConfig() Config {
	return Config{
		BackBufferCount: DefaultBackBufferCount,
		StagingCapacity: staging.DefaultCapacity,
		BlobRoot:        technique.DefaultBlobRoot,
		PresentMode:     "fifo",
		Width:           1280,
		Height:          720,
	}
}

// LoadConfig reads a TOML device configuration. Keys the file leaves out keep their defaults; unknown keys are
// rejected so typos do not silently fall back.
//
// Parameters:
//   - path: the TOML file
//
// Returns:
//   - Config: the configuration with defaults filled in
//   - error: a read, decode or validation failure
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	c.BackBufferCount = common.Coalesce(c.BackBufferCount, def.BackBufferCount)
	c.StagingCapacity = common.Coalesce(c.StagingCapacity, def.StagingCapacity)
	c.BlobRoot = common.Coalesce(c.BlobRoot, def.BlobRoot)
	c.PresentMode = common.Coalesce(c.PresentMode, def.PresentMode)
	c.Width = common.Coalesce(c.Width, def.Width)
	c.Height = common.Coalesce(c.Height, def.Height)
	return c
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.BackBufferCount < 1 || c.BackBufferCount > MaxBackBufferCount {
		return fmt.Errorf("back_buffer_count must be between 1 and %d, got %d", MaxBackBufferCount, c.BackBufferCount)
	}
	if !common.IsPowerOfTwo(c.StagingCapacity) {
		return fmt.Errorf("staging_capacity must be a power of two, got %d", c.StagingCapacity)
	}
	if _, err := c.presentMode(); err != nil {
		return err
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("width and height must be positive, got %dx%d", c.Width, c.Height)
	}
	return nil
}

func (c Config) presentMode() (gputypes.PresentMode, error) {
	switch c.PresentMode {
	case "fifo", "":
		return gputypes.PresentModeFifo, nil
	case "fifo_relaxed":
		return gputypes.PresentModeFifoRelaxed, nil
	case "mailbox":
		return gputypes.PresentModeMailbox, nil
	case "immediate":
		return gputypes.PresentModeImmediate, nil
	default:
		return gputypes.PresentModeUndefined, fmt.Errorf("unknown present_mode %q", c.PresentMode)
	}
}
