package technique

import "go.uber.org/zap"

// CacheBuilderOption is a functional option applied to a cache during construction via NewCache.
type CacheBuilderOption func(*cache)

// WithBlobRoot sets the directory blobs are written below. An empty root keeps DefaultBlobRoot.
func WithBlobRoot(root string) CacheBuilderOption {
	return func(c *cache) {
		if root != "" {
			c.root = root
		}
	}
}

// WithCacheLogger sets the cache's logger.
func WithCacheLogger(logger *zap.Logger) CacheBuilderOption {
	return func(c *cache) {
		c.logger = logger
	}
}
