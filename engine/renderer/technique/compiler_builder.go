package technique

import (
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/shader"
	"go.uber.org/zap"
)

// CompilerBuilderOption is a functional option applied to a compiler during construction via NewCompiler.
type CompilerBuilderOption func(*compiler)

// WithShaderCompiler replaces the default naga stage compiler.
//
// Parameters:
//   - sc: the stage compiler; it must be safe for concurrent use
//
// Returns:
//   - CompilerBuilderOption: a function that applies the option to a compiler
func WithShaderCompiler(sc shader.Compiler) CompilerBuilderOption {
	return func(c *compiler) {
		c.shaderCompiler = sc
	}
}

// WithPreProcessor sets the pre-processor that expands stage includes, typically one with an include directory.
func WithPreProcessor(pp shader.PreProcessor) CompilerBuilderOption {
	return func(c *compiler) {
		c.preProcessor = pp
	}
}

// WithLogger sets the compiler's logger.
func WithLogger(logger *zap.Logger) CompilerBuilderOption {
	return func(c *compiler) {
		c.logger = logger
	}
}

// WithMaxWorkers sets how many stages compile at once. Values below 1 are ignored.
func WithMaxWorkers(n int) CompilerBuilderOption {
	return func(c *compiler) {
		if n > 0 {
			c.maxWorkers = n
		}
	}
}
