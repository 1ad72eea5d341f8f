package technique

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/Carmen-Shannon/oxy-gfx/common"
	"go.uber.org/zap"
)

// DefaultBlobRoot is the directory compiled blobs are written below when WithBlobRoot is not given.
const DefaultBlobRoot = "Data"

// CacheStats counts cache activity since the cache was created.
type CacheStats struct {
	// Loads counts Load and Rebuild calls that returned a blob.
	Loads int
	// Regenerations counts compilations, whether forced by Rebuild or caused by a stale or missing blob.
	Regenerations int
}

// cache is the implementation of the Cache interface.
type cache struct {
	mu       sync.Mutex
	root     string
	compiler Compiler
	logger   *zap.Logger
	stats    CacheStats
}

// Cache loads techniques through their compiled blobs, compiling the JSON only when the blob is missing or its
// checksum no longer matches.
type Cache interface {
	// Load returns the blob for a technique JSON path. The blob at BlobPath(root, path) is used when its checksum
	// matches the JSON; otherwise the JSON is compiled and the blob rewritten. Without the JSON the blob is used as
	// is, so shipped builds can carry blobs only.
	//
	// Parameters:
	//   - path: the technique JSON path
	//
	// Returns:
	//   - *Blob: the compiled technique
	//   - error: an error wrapping fs.ErrNotExist when neither file exists, or the compile or write failure
	Load(path string) (*Blob, error)

	// Rebuild compiles the JSON and rewrites the blob even when the checksum matches. The device uses it when a
	// file the technique includes changed, which the JSON checksum cannot see.
	//
	// Parameters:
	//   - path: the technique JSON path
	//
	// Returns:
	//   - *Blob: the compiled technique
	//   - error: the read, compile or write failure
	Rebuild(path string) (*Blob, error)

	// BlobPath returns where the blob for a technique path is stored.
	BlobPath(path string) string

	// Stats returns the activity counters.
	Stats() CacheStats
}

var _ Cache = &cache{}

// NewCache creates a technique cache over a compiler.
//
// Parameters:
//   - c: the compiler used to regenerate blobs
//   - opts: optional configuration such as WithBlobRoot
//
// Returns:
//   - Cache: the cache
func NewCache(c Compiler, opts ...CacheBuilderOption) Cache {
	tc := &cache{
		root:     DefaultBlobRoot,
		compiler: c,
	}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.logger == nil {
		tc.logger = zap.L()
	}
	return tc
}

func (c *cache) BlobPath(path string) string {
	return common.BlobPath(c.root, path)
}

func (c *cache) Load(path string) (*Blob, error) {
	blobPath := c.BlobPath(path)
	source, srcErr := os.ReadFile(path)
	cached, blobErr := os.ReadFile(blobPath)

	switch {
	case srcErr != nil && !errors.Is(srcErr, fs.ErrNotExist):
		return nil, fmt.Errorf("failed to read technique %s: %w", path, srcErr)
	case srcErr != nil && blobErr != nil:
		return nil, fmt.Errorf("technique %s has no json or blob: %w", path, fs.ErrNotExist)
	case srcErr != nil:
		blob, err := DecodeBlob(cached)
		if err != nil {
			return nil, fmt.Errorf("failed to decode blob %s: %w", blobPath, err)
		}
		c.count(false)
		return blob, nil
	}

	if blobErr == nil {
		checksum, err := PeekChecksum(cached)
		if err == nil && checksum == common.HashBytes(source) {
			blob, err := DecodeBlob(cached)
			if err == nil {
				c.count(false)
				return blob, nil
			}
			c.logger.Warn("discarding unreadable technique blob", zap.String("blob", blobPath), zap.Error(err))
		}
	}
	return c.regenerate(path, blobPath, source)
}

func (c *cache) Rebuild(path string) (*Blob, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read technique %s: %w", path, err)
	}
	return c.regenerate(path, c.BlobPath(path), source)
}

func (c *cache) regenerate(path, blobPath string, source []byte) (*Blob, error) {
	blob, err := c.compiler.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("technique %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(blobPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	if err := os.WriteFile(blobPath, EncodeBlob(blob), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write blob %s: %w", blobPath, err)
	}

	c.logger.Info("regenerated technique blob", zap.String("path", path), zap.String("blob", blobPath))
	c.count(true)
	return blob, nil
}

func (c *cache) count(regenerated bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Loads++
	if regenerated {
		c.stats.Regenerations++
	}
}

func (c *cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
