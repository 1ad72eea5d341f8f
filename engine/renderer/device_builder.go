package renderer

import (
	"github.com/Carmen-Shannon/oxy-gfx/engine/loader"
	"github.com/Carmen-Shannon/oxy-gfx/engine/profiler"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/shader"
	"go.uber.org/zap"
)

// DeviceBuilderOption is a functional option used to configure a Device during construction. Options are applied
// in order, so options given after WithConfig override the fields of that config.
type DeviceBuilderOption func(*device)

// WithConfig replaces the device configuration.
//
// Parameters:
//   - cfg: the configuration, e.g. from LoadConfig
//
// Returns:
//   - DeviceBuilderOption: a function that sets the configuration on a device
func WithConfig(cfg Config) DeviceBuilderOption {
	return func(d *device) {
		d.cfg = cfg
	}
}

// WithBackend makes the device use b instead of creating the WebGPU backend. The device releases b on Destroy.
//
// Parameters:
//   - b: the backend, e.g. backend.NewRecordingBackend() for headless use
//
// Returns:
//   - DeviceBuilderOption: a function that sets the backend on a device
func WithBackend(b backend.Backend) DeviceBuilderOption {
	return func(d *device) {
		d.backend = b
	}
}

// WithLogger sets the logger shared by the device and everything it creates.
//
// Parameters:
//   - logger: the logger to use
//
// Returns:
//   - DeviceBuilderOption: a function that sets the logger on a device
func WithLogger(logger *zap.Logger) DeviceBuilderOption {
	return func(d *device) {
		d.logger = logger
	}
}

// WithCompiler sets the shader compiler techniques are compiled with. Defaults to naga.
//
// Parameters:
//   - c: the shader compiler
//
// Returns:
//   - DeviceBuilderOption: a function that sets the shader compiler on a device
func WithCompiler(c shader.Compiler) DeviceBuilderOption {
	return func(d *device) {
		d.shaderCompiler = c
	}
}

// WithProfiler ticks p once per frame and records technique, texture and model load times on it.
func WithProfiler(p *profiler.Profiler) DeviceBuilderOption {
	return func(d *device) {
		d.profiler = p
	}
}

// WithHotReload overrides the config's hot_reload setting.
func WithHotReload(enabled bool) DeviceBuilderOption {
	return func(d *device) {
		d.cfg.HotReload = enabled
	}
}

// WithBackBufferCount overrides the config's back_buffer_count setting.
func WithBackBufferCount(count int) DeviceBuilderOption {
	return func(d *device) {
		d.cfg.BackBufferCount = count
	}
}

// WithRetryPrompt installs the prompt LoadTechnique consults after a failed load. The load is retried while the
// prompt returns true, which lets a developer fix the file and try again without restarting.
//
// Parameters:
//   - prompt: called with the technique path and the load error
//
// Returns:
//   - DeviceBuilderOption: a function that sets the prompt on a device
func WithRetryPrompt(prompt func(path string, err error) bool) DeviceBuilderOption {
	return func(d *device) {
		d.retryPrompt = prompt
	}
}

// WithMeshLoader sets the mesh decoder LoadModel uses. The default decodes glTF and GLB.
//
// Parameters:
//   - l: the mesh loader
//
// Returns:
//   - DeviceBuilderOption: a function that sets the mesh loader on a device
func WithMeshLoader(l loader.Loader) DeviceBuilderOption {
	return func(d *device) {
		d.meshLoader = l
	}
}
