package loader

import (
	"fmt"
	"os"
	"strings"

	"github.com/Carmen-Shannon/oxy-gfx/common"
	"go.uber.org/zap"
)

// gltfMaterialExtractorImpl is the implementation of the gltfMaterialExtractor interface.
type gltfMaterialExtractorImpl struct {
	parser      gltfParser
	materialDir string
	logger      *zap.Logger
}

// gltfMaterialExtractor resolves each material's diffuse (base color) texture to a file path below the material
// directory and builds the deduplicated texture path table.
type gltfMaterialExtractor interface {
	// ExtractAllMaterials returns one material per document material and the texture paths they index.
	// A material whose texture is embedded, missing or absent gets DiffuseTexture -1.
	//
	// Returns:
	//   - []common.ImportedMaterial: the materials
	//   - []string: the texture paths, each an existing file
	//   - error: error if a texture or image index is out of range
	ExtractAllMaterials() ([]common.ImportedMaterial, []string, error)
}

var _ gltfMaterialExtractor = &gltfMaterialExtractorImpl{}

// newGLTFMaterialExtractor creates a new material extractor for a parsed document.
//
// Parameters:
//   - parser: the parser containing a loaded document
//   - materialDir: the directory image URIs resolve against
//   - logger: receives a warning per unusable texture
//
// Returns:
//   - gltfMaterialExtractor: the material extractor
func newGLTFMaterialExtractor(parser gltfParser, materialDir string, logger *zap.Logger) gltfMaterialExtractor {
	return &gltfMaterialExtractorImpl{parser: parser, materialDir: materialDir, logger: logger}
}

func (e *gltfMaterialExtractorImpl) ExtractAllMaterials() ([]common.ImportedMaterial, []string, error) {
	doc := e.parser.Document()
	if doc == nil {
		return nil, nil, fmt.Errorf("no document loaded")
	}

	materials := make([]common.ImportedMaterial, len(doc.Materials))
	var paths []string
	table := make(map[string]int32)

	for i := range doc.Materials {
		mat := &doc.Materials[i]
		materials[i] = common.ImportedMaterial{Name: mat.Name, DiffuseTexture: -1}
		if mat.PbrMetallicRoughness == nil || mat.PbrMetallicRoughness.BaseColorTexture == nil {
			continue
		}

		uri, err := e.imageURI(mat.PbrMetallicRoughness.BaseColorTexture.Index)
		if err != nil {
			return nil, nil, fmt.Errorf("material %d: %w", i, err)
		}
		if uri == "" {
			e.logger.Debug("material texture is not an external file", zap.String("material", mat.Name))
			continue
		}

		index, seen := table[uri]
		if !seen {
			index = -1
			path := resolveURI(e.materialDir, uri)
			if fileExists(path) {
				index = int32(len(paths))
				paths = append(paths, path)
			} else {
				e.logger.Warn("material texture not found", zap.String("material", mat.Name), zap.String("path", path))
			}
			table[uri] = index
		}
		materials[i].DiffuseTexture = index
	}
	return materials, paths, nil
}

// imageURI returns the external file URI behind a texture, or "" for embedded or source-less textures.
func (e *gltfMaterialExtractorImpl) imageURI(textureIndex int) (string, error) {
	doc := e.parser.Document()
	if textureIndex < 0 || textureIndex >= len(doc.Textures) {
		return "", fmt.Errorf("texture index %d out of range", textureIndex)
	}
	tex := &doc.Textures[textureIndex]
	if tex.Source == nil {
		return "", nil
	}
	if *tex.Source < 0 || *tex.Source >= len(doc.Images) {
		return "", fmt.Errorf("image index %d out of range", *tex.Source)
	}

	img := &doc.Images[*tex.Source]
	if img.BufferView != nil || strings.HasPrefix(img.URI, "data:") {
		return "", nil
	}
	return img.URI, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
