package resource

import "go.uber.org/zap"

// StoreBuilderOption is a functional option applied to a store during construction via NewStore.
type StoreBuilderOption func(*storeImpl)

// WithLogger sets the logger used for upload diagnostics. Defaults to zap.L().
//
// Parameters:
//   - logger: the logger to use
//
// Returns:
//   - StoreBuilderOption: a function that applies the logger option to a store
func WithLogger(logger *zap.Logger) StoreBuilderOption {
	return func(s *storeImpl) {
		if logger != nil {
			s.logger = logger
		}
	}
}
