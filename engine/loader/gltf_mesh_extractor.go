package loader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-gfx/common"
)

// gltfPrimitiveData is one triangle list with its own vertex streams. Indices are local to the primitive.
type gltfPrimitiveData struct {
	name      string
	material  int // -1 without material
	positions [][3]float32
	texCoords [][2]float32
	normals   [][3]float32
	indices   []uint32
}

// gltfMeshExtractorImpl is the implementation of the gltfMeshExtractor interface.
type gltfMeshExtractorImpl struct {
	parser gltfParser
}

// gltfMeshExtractor reads the triangle primitives of a parsed document.
type gltfMeshExtractor interface {
	// ExtractAllPrimitives returns every primitive of every mesh in document order.
	//
	// Returns:
	//   - []gltfPrimitiveData: the primitives
	//   - error: error if a primitive is not a triangle list or an accessor cannot be read
	ExtractAllPrimitives() ([]gltfPrimitiveData, error)
}

var _ gltfMeshExtractor = &gltfMeshExtractorImpl{}

// newGLTFMeshExtractor creates a mesh extractor for the given parser.
func newGLTFMeshExtractor(parser gltfParser) gltfMeshExtractor {
	return &gltfMeshExtractorImpl{parser: parser}
}

func (e *gltfMeshExtractorImpl) ExtractAllPrimitives() ([]gltfPrimitiveData, error) {
	doc := e.parser.Document()
	var out []gltfPrimitiveData
	for m := range doc.Meshes {
		mesh := &doc.Meshes[m]
		for i := range mesh.Primitives {
			prim, err := e.extractPrimitive(&mesh.Primitives[i])
			if err != nil {
				return nil, fmt.Errorf("mesh %d primitive %d: %w", m, i, err)
			}
			prim.name = mesh.Name
			if prim.name == "" {
				prim.name = fmt.Sprintf("mesh_%d", m)
			}
			if len(mesh.Primitives) > 1 {
				prim.name = fmt.Sprintf("%s_prim%d", prim.name, i)
			}
			out = append(out, *prim)
		}
	}
	return out, nil
}

func (e *gltfMeshExtractorImpl) extractPrimitive(prim *gltfPrimitive) (*gltfPrimitiveData, error) {
	if prim.Mode != nil && *prim.Mode != gltfPrimitiveModeTriangles {
		return nil, fmt.Errorf("unsupported primitive mode: %d (only triangles supported)", *prim.Mode)
	}

	posAccessor, ok := prim.Attributes["POSITION"]
	if !ok {
		return nil, fmt.Errorf("primitive has no POSITION attribute")
	}
	positions, err := e.parser.ReadVec3Accessor(posAccessor)
	if err != nil {
		return nil, fmt.Errorf("failed to read positions: %w", err)
	}
	data := &gltfPrimitiveData{material: -1, positions: positions}
	if prim.Material != nil {
		data.material = *prim.Material
	}

	if prim.Indices != nil {
		if data.indices, err = e.parser.ReadIndicesAccessor(*prim.Indices); err != nil {
			return nil, fmt.Errorf("failed to read indices: %w", err)
		}
	} else {
		data.indices = make([]uint32, len(positions))
		for i := range data.indices {
			data.indices[i] = uint32(i)
		}
	}
	if len(data.indices)%3 != 0 {
		return nil, fmt.Errorf("%d indices do not form triangles", len(data.indices))
	}
	for _, idx := range data.indices {
		if int(idx) >= len(positions) {
			return nil, fmt.Errorf("index %d exceeds %d vertices", idx, len(positions))
		}
	}

	if acc, ok := prim.Attributes["TEXCOORD_0"]; ok {
		if data.texCoords, err = e.parser.ReadVec2Accessor(acc); err != nil {
			return nil, fmt.Errorf("failed to read texcoords: %w", err)
		}
		if len(data.texCoords) != len(positions) {
			return nil, fmt.Errorf("%d texcoords for %d vertices", len(data.texCoords), len(positions))
		}
	} else {
		data.texCoords = make([][2]float32, len(positions))
	}

	if acc, ok := prim.Attributes["NORMAL"]; ok {
		if data.normals, err = e.parser.ReadVec3Accessor(acc); err != nil {
			return nil, fmt.Errorf("failed to read normals: %w", err)
		}
		if len(data.normals) != len(positions) {
			return nil, fmt.Errorf("%d normals for %d vertices", len(data.normals), len(positions))
		}
	} else {
		data.normals = generateNormals(positions, data.indices)
	}
	return data, nil
}

// generateNormals computes smooth vertex normals by summing the unit face normals of every triangle touching a
// vertex. Vertices without a non-degenerate triangle keep a zero normal.
//
// Parameters:
//   - positions: the vertex positions
//   - indices: the triangle list, validated against positions
//
// Returns:
//   - [][3]float32: one normal per vertex
func generateNormals(positions [][3]float32, indices []uint32) [][3]float32 {
	accum := make([]common.Vec3, len(positions))
	for i := 0; i+2 < len(indices); i += 3 {
		a, b, c := indices[i], indices[i+1], indices[i+2]
		pa, pb, pc := common.Vec3(positions[a]), common.Vec3(positions[b]), common.Vec3(positions[c])
		face := pb.Sub(pa).Cross(pc.Sub(pa)).Normalize()
		accum[a] = accum[a].Add(face)
		accum[b] = accum[b].Add(face)
		accum[c] = accum[c].Add(face)
	}

	normals := make([][3]float32, len(positions))
	for i, n := range accum {
		normals[i] = n.Normalize()
	}
	return normals
}
