package loader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-gfx/common"
	"github.com/chewxy/math32"
	"go.uber.org/zap"
)

// gltfImporterImpl is the implementation of the gltfImporter interface.
type gltfImporterImpl struct {
	logger *zap.Logger
}

// gltfImporter orchestrates a glTF/GLB import: it parses the document, extracts primitives and materials and
// merges them into one MeshData.
type gltfImporter interface {
	// Import decodes a glTF JSON document or GLB container.
	//
	// Parameters:
	//   - data: the file contents
	//   - materialDir: the directory external buffers and images resolve against
	//
	// Returns:
	//   - *common.MeshData: the merged mesh
	//   - error: error if import fails
	Import(data []byte, materialDir string) (*common.MeshData, error)
}

var _ gltfImporter = &gltfImporterImpl{}

// newGLTFImporter creates a new glTF importer.
func newGLTFImporter(logger *zap.Logger) gltfImporter {
	return &gltfImporterImpl{logger: logger}
}

func (imp *gltfImporterImpl) Import(data []byte, materialDir string) (*common.MeshData, error) {
	parser := newGLTFParser()
	if err := parser.Parse(data, materialDir); err != nil {
		return nil, fmt.Errorf("failed to parse glTF: %w", err)
	}

	prims, err := newGLTFMeshExtractor(parser).ExtractAllPrimitives()
	if err != nil {
		return nil, fmt.Errorf("mesh extraction failed: %w", err)
	}
	materials, paths, err := newGLTFMaterialExtractor(parser, materialDir, imp.logger).ExtractAllMaterials()
	if err != nil {
		return nil, fmt.Errorf("material extraction failed: %w", err)
	}

	mesh := &common.MeshData{Materials: materials, TexturePaths: paths}
	for i := range prims {
		p := &prims[i]
		sm := common.Submesh{
			MaterialIndex: common.NoMaterial,
			VertexOffset:  uint32(len(mesh.Positions)),
			VertexCount:   uint32(len(p.positions)),
			IndexOffset:   uint32(len(mesh.Indices)),
			IndexCount:    uint32(len(p.indices)),
		}
		if p.material >= 0 {
			if p.material >= len(materials) {
				return nil, fmt.Errorf("primitive %s references material %d of %d", p.name, p.material, len(materials))
			}
			sm.MaterialIndex = uint32(p.material)
		}
		mesh.Submeshes = append(mesh.Submeshes, sm)
		mesh.Positions = append(mesh.Positions, p.positions...)
		mesh.TexCoords = append(mesh.TexCoords, p.texCoords...)
		mesh.Normals = append(mesh.Normals, p.normals...)
		mesh.Indices = append(mesh.Indices, p.indices...)
	}

	mesh.BoundsMin, mesh.BoundsMax = boundingBox(mesh.Positions)
	mesh.QuantizationScale = quantizationScale(mesh.Positions)
	imp.logger.Debug("imported glTF mesh",
		zap.Int("submeshes", len(mesh.Submeshes)),
		zap.Int("vertices", len(mesh.Positions)),
		zap.Int("materials", len(mesh.Materials)),
		zap.Int("textures", len(mesh.TexturePaths)))
	return mesh, nil
}

// boundingBox returns the component-wise minimum and maximum, both zero for an empty mesh.
func boundingBox(positions [][3]float32) ([3]float32, [3]float32) {
	if len(positions) == 0 {
		return [3]float32{}, [3]float32{}
	}
	lo, hi := positions[0], positions[0]
	for _, p := range positions[1:] {
		for c := 0; c < 3; c++ {
			lo[c] = math32.Min(lo[c], p[c])
			hi[c] = math32.Max(hi[c], p[c])
		}
	}
	return lo, hi
}

// quantizationScale is the largest absolute position component, at least 1/65535.
func quantizationScale(positions [][3]float32) float32 {
	q := float32(1) / 65535
	for _, p := range positions {
		for _, v := range p {
			q = math32.Max(q, math32.Abs(v))
		}
	}
	return q
}
