package shader

import "go.uber.org/zap"

// NagaCompilerBuilderOption configures the compiler returned by NewNagaCompiler.
type NagaCompilerBuilderOption func(*nagaCompiler)

// WithCompilerLogger sets the logger compile timings are reported to.
func WithCompilerLogger(logger *zap.Logger) NagaCompilerBuilderOption {
	return func(c *nagaCompiler) {
		c.logger = logger
	}
}
