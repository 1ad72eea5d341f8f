package engine

import (
	"time"

	"github.com/Carmen-Shannon/oxy-gfx/engine/profiler"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer"
	"github.com/Carmen-Shannon/oxy-gfx/engine/window"
	"go.uber.org/zap"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithLogger sets the logger used by the engine and the device it creates.
//
// Parameters:
//   - logger: the zap logger
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithLogger(logger *zap.Logger) EngineBuilderOption {
	return func(e *engine) {
		e.logger = logger
	}
}

// WithWindow sets the window the device presents to. Without a window the engine is headless and its device
// needs a backend given through WithDeviceOptions.
//
// Parameters:
//   - w: a window created with window.NewWindow
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithConfigFile loads the device configuration from a TOML file when Run creates the device.
//
// Parameters:
//   - path: the config file, see renderer.LoadConfig
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithConfigFile(path string) EngineBuilderOption {
	return func(e *engine) {
		e.configPath = path
	}
}

// WithDeviceOptions appends options passed to renderer.NewDevice. They are applied after the config file, so
// they override it.
//
// Parameters:
//   - opts: device options
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithDeviceOptions(opts ...renderer.DeviceBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.deviceOpts = append(e.deviceOpts, opts...)
	}
}

// WithProfiling enables or disables periodic frame and load timing reports.
//
// Parameters:
//   - enabled: if true, the device reports to the engine's profiler
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithProfiler replaces the profiler used when profiling is enabled.
func WithProfiler(p *profiler.Profiler) EngineBuilderOption {
	return func(e *engine) {
		e.profiler = p
	}
}

// WithReloadKey sets the key that reloads changed techniques. Defaults to DefaultReloadKey.
//
// Parameters:
//   - key: a common.Key* code
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithReloadKey(key uint32) EngineBuilderOption {
	return func(e *engine) {
		e.reloadKey = key
	}
}

// WithRetryOnLoadFailure makes a technique that fails to load during setup wait for the reload key and try
// again, so shader errors can be fixed without restarting. Requires a window.
func WithRetryOnLoadFailure(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.retryOnFailure = enabled
	}
}

// WithTickRate sets the engine tick rate in ticks per second.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second (default 60)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			fps = 60.0
		}
		e.engineTickRate = time.Duration(float64(time.Second) / fps)
	}
}

// WithRenderFrameLimit sets an optional render frame rate cap in frames per second.
// Pass 0 to uncap the render loop (default).
//
// Parameters:
//   - fps: maximum render frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			e.renderFrameLimit = 0
			return
		}
		e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
	}
}
