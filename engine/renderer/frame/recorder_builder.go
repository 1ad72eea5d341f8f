package frame

import "go.uber.org/zap"

// RecorderBuilderOption is a functional option used to configure a Recorder during construction.
type RecorderBuilderOption func(*recorder)

// WithLogger sets the logger the recorder reports per-frame counters to at debug level.
//
// Parameters:
//   - logger: the logger to use
//
// Returns:
//   - RecorderBuilderOption: a function that sets the logger on a recorder
func WithLogger(logger *zap.Logger) RecorderBuilderOption {
	return func(r *recorder) {
		r.logger = logger
	}
}
