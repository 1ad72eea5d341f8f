package renderer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/Carmen-Shannon/oxy-gfx/common"
	"github.com/Carmen-Shannon/oxy-gfx/engine/model"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/resource"
	"github.com/gogpu/gputypes"
	"go.uber.org/zap"
)

// loadAsset returns the decoded blob of an asset, regenerating it from the source file when the cached blob is
// missing, stale or unreadable. A blob without its source is used as is. Failing to write a regenerated blob
// only costs the next load a rebuild, so it is logged and ignored.
//
// Parameters:
//   - d: the device whose config and stats are used
//   - path: the source asset path
//   - decode: parses blob bytes
//   - build: converts source bytes into blob bytes carrying checksum
//
// Returns:
//   - T: the decoded blob
//   - error: an error wrapping ErrAssetNotFound, or a read, decode or build failure
func loadAsset[T any](d *device, path string, decode func([]byte) (T, error), build func(source []byte, checksum uint64) ([]byte, error)) (T, error) {
	var zero T
	blobPath := common.BlobPath(d.cfg.BlobRoot, path)
	source, srcErr := os.ReadFile(path)
	cached, blobErr := os.ReadFile(blobPath)

	switch {
	case srcErr != nil && !errors.Is(srcErr, fs.ErrNotExist):
		return zero, fmt.Errorf("failed to read %s: %w", path, srcErr)
	case srcErr != nil && blobErr != nil:
		return zero, fmt.Errorf("%w: %s has no source file or blob", ErrAssetNotFound, path)
	case srcErr != nil:
		v, err := decode(cached)
		if err != nil {
			return zero, fmt.Errorf("failed to decode blob %s: %w", blobPath, err)
		}
		d.stats.AssetLoads++
		return v, nil
	}

	checksum := common.HashBytes(source)
	if blobErr == nil && len(cached) >= 8 && binary.LittleEndian.Uint64(cached) == checksum {
		v, err := decode(cached)
		if err == nil {
			d.stats.AssetLoads++
			return v, nil
		}
		d.logger.Warn("discarding unreadable asset blob", zap.String("blob", blobPath), zap.Error(err))
	}

	data, err := build(source, checksum)
	if err != nil {
		return zero, fmt.Errorf("failed to convert %s: %w", path, err)
	}
	v, err := decode(data)
	if err != nil {
		return zero, fmt.Errorf("failed to decode converted %s: %w", path, err)
	}
	if err := writeBlob(blobPath, data); err != nil {
		d.logger.Warn("failed to write asset blob", zap.String("blob", blobPath), zap.Error(err))
	}
	d.stats.AssetLoads++
	d.stats.AssetRegenerations++
	d.logger.Info("regenerated asset blob", zap.String("path", path), zap.String("blob", blobPath))
	return v, nil
}

func writeBlob(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (d *device) LoadTexture(path string) (*resource.Texture, error) {
	start := time.Now()
	blob, err := loadAsset(d, path, decodeTextureBlob, func(source []byte, checksum uint64) ([]byte, error) {
		img, err := common.DecodeImage(source)
		if err != nil {
			return nil, err
		}
		return encodeTextureBlob(checksum, img), nil
	})
	if err != nil {
		d.logger.Error("failed to load texture", zap.String("path", path), zap.Error(err))
		return nil, err
	}

	tex := d.store.CreateTexture(resource.TextureParams{
		Label:           path,
		Type:            backend.TextureType2D,
		Width:           blob.width,
		Height:          blob.height,
		Format:          gputypes.TextureFormatRGBA8Unorm,
		Usage:           gputypes.TextureUsageTextureBinding,
		InitialState:    backend.TextureStateShaderRead,
		Data:            blob.pixels,
		GenerateMipmaps: true,
	})
	d.record("texture_load", start)
	d.logger.Debug("loaded texture", zap.String("path", path), zap.Uint32("width", blob.width), zap.Uint32("height", blob.height))
	return tex, nil
}

func (d *device) LoadModel(path, materialDir string) (model.Model, error) {
	start := time.Now()
	if !d.meshLoader.Supports(path) {
		return nil, fmt.Errorf("unsupported model format %q", filepath.Ext(path))
	}

	blob, err := loadAsset(d, path, model.DecodeBlob, func(source []byte, checksum uint64) ([]byte, error) {
		mesh, err := d.meshLoader.Import(source, materialDir)
		if err != nil {
			return nil, err
		}
		b, err := model.Build(mesh, checksum)
		if err != nil {
			return nil, err
		}
		return model.EncodeBlob(b), nil
	})
	if err != nil {
		d.logger.Error("failed to load model", zap.String("path", path), zap.Error(err))
		return nil, err
	}

	m, err := model.NewModel(blob, d.store,
		model.WithName(filepath.Base(path)),
		model.WithTextureLoader(d.LoadTexture),
		model.WithLogger(d.logger))
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	d.record("model_load", start)
	d.logger.Info("loaded model", zap.String("path", path), zap.Int("meshes", m.MeshCount()))
	return m, nil
}

func (d *device) DestroyModel(m model.Model) {
	if m == nil {
		return
	}
	m.Destroy(d.store)
}
