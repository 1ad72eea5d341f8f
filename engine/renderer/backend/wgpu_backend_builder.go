package backend

import (
	"github.com/gogpu/gputypes"
	"go.uber.org/zap"
)

// WGPUBackendOption is a functional option applied to the WebGPU backend during construction via NewWGPUBackend.
type WGPUBackendOption func(*wgpuBackendImpl)

// WithPresentMode sets the surface present mode used when the swapchain is configured.
//
// Parameters:
//   - mode: the gputypes.PresentMode to request
//
// Returns:
//   - WGPUBackendOption: a function that applies the present mode option to the backend
func WithPresentMode(mode gputypes.PresentMode) WGPUBackendOption {
	return func(b *wgpuBackendImpl) {
		b.presentMode = mode
	}
}

// WithForceFallbackAdapter requests the software fallback adapter instead of a hardware one.
//
// Parameters:
//   - force: whether to force the fallback adapter
//
// Returns:
//   - WGPUBackendOption: a function that applies the fallback option to the backend
func WithForceFallbackAdapter(force bool) WGPUBackendOption {
	return func(b *wgpuBackendImpl) {
		b.forceFallbackAdapter = force
	}
}

// WithLogger sets the logger the backend reports unsupported state with. Defaults to zap.L().
func WithLogger(logger *zap.Logger) WGPUBackendOption {
	return func(b *wgpuBackendImpl) {
		if logger != nil {
			b.logger = logger
		}
	}
}
