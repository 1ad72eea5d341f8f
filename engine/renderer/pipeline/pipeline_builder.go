package pipeline

import "go.uber.org/zap"

// BuilderOption is a functional option used to configure a Builder during construction.
type BuilderOption func(*builder)

// WithLogger sets the logger used for build and rebuild messages.
//
// Parameters:
//   - logger: the logger to use
//
// Returns:
//   - BuilderOption: a function that sets the logger on a builder
func WithLogger(logger *zap.Logger) BuilderOption {
	return func(b *builder) {
		b.logger = logger
	}
}
