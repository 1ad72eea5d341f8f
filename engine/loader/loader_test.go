package loader

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-gfx/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quadBuffer holds 4 positions, 4 texcoords and 6 uint16 indices.
func quadBuffer() []byte {
	var buf []byte
	f := func(vs ...float32) {
		for _, v := range vs {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
	}
	f(-1, -1, 0, 1, -1, 0, 1, 1, 0, -1, 1, 0)
	f(0, 0, 1, 0, 1, 1, 0, 1)
	for _, i := range []uint16{0, 1, 2, 0, 2, 3} {
		buf = binary.LittleEndian.AppendUint16(buf, i)
	}
	return buf
}

// quadDocument describes two primitives sharing the quad buffer: one textured with a material, the second
// without normals or material. bufferURI is empty for GLB.
func quadDocument(bufferURI string, length int) string {
	uri := ""
	if bufferURI != "" {
		uri = fmt.Sprintf(`"uri": %q,`, bufferURI)
	}
	return fmt.Sprintf(`{
  "asset": {"version": "2.0"},
  "buffers": [{%s "byteLength": %d}],
  "bufferViews": [
    {"buffer": 0, "byteOffset": 0, "byteLength": 48},
    {"buffer": 0, "byteOffset": 48, "byteLength": 32},
    {"buffer": 0, "byteOffset": 80, "byteLength": 12}
  ],
  "accessors": [
    {"bufferView": 0, "componentType": 5126, "count": 4, "type": "VEC3"},
    {"bufferView": 1, "componentType": 5126, "count": 4, "type": "VEC2"},
    {"bufferView": 2, "componentType": 5123, "count": 6, "type": "SCALAR"}
  ],
  "images": [{"uri": "brick%%20wall.png"}, {"uri": "missing.png"}],
  "textures": [{"source": 0}, {"source": 1}, {"source": 0}],
  "materials": [
    {"name": "brick", "pbrMetallicRoughness": {"baseColorTexture": {"index": 0}}},
    {"name": "ghost", "pbrMetallicRoughness": {"baseColorTexture": {"index": 1}}},
    {"name": "brick2", "pbrMetallicRoughness": {"baseColorTexture": {"index": 2}}},
    {"name": "plain"}
  ],
  "meshes": [{"name": "quad", "primitives": [
    {"attributes": {"POSITION": 0, "TEXCOORD_0": 1}, "indices": 2, "material": 0},
    {"attributes": {"POSITION": 0}, "indices": 2}
  ]}]
}`, uri, length)
}

func materialDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "brick wall.png"), []byte("png"), 0o644))
	return dir
}

func checkQuad(t *testing.T, mesh *common.MeshData, dir string) {
	t.Helper()
	require.Len(t, mesh.Submeshes, 2)
	assert.Equal(t, common.Submesh{MaterialIndex: 0, VertexOffset: 0, VertexCount: 4, IndexOffset: 0, IndexCount: 6}, mesh.Submeshes[0])
	assert.Equal(t, common.Submesh{MaterialIndex: common.NoMaterial, VertexOffset: 4, VertexCount: 4, IndexOffset: 6, IndexCount: 6}, mesh.Submeshes[1])

	assert.Len(t, mesh.Positions, 8)
	assert.Len(t, mesh.TexCoords, 8)
	assert.Equal(t, [2]float32{1, 1}, mesh.TexCoords[2])
	assert.Equal(t, [2]float32{0, 0}, mesh.TexCoords[6])
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3, 0, 1, 2, 0, 2, 3}, mesh.Indices)
	for i := 4; i < 8; i++ {
		assert.InDeltaSlice(t, []float32{0, 0, 1}, mesh.Normals[i][:], 1e-6)
	}

	assert.Equal(t, []string{filepath.Join(dir, "brick wall.png")}, mesh.TexturePaths)
	assert.Equal(t, []common.ImportedMaterial{
		{Name: "brick", DiffuseTexture: 0},
		{Name: "ghost", DiffuseTexture: -1},
		{Name: "brick2", DiffuseTexture: 0},
		{Name: "plain", DiffuseTexture: -1},
	}, mesh.Materials)

	assert.Equal(t, [3]float32{-1, -1, 0}, mesh.BoundsMin)
	assert.Equal(t, [3]float32{1, 1, 0}, mesh.BoundsMax)
	assert.Equal(t, float32(1), mesh.QuantizationScale)
}

func TestImportGLTFDataURI(t *testing.T) {
	buf := quadBuffer()
	dir := materialDir(t)
	doc := quadDocument("data:application/octet-stream;base64,"+base64.StdEncoding.EncodeToString(buf), len(buf))

	mesh, err := ImportMesh([]byte(doc), dir)
	require.NoError(t, err)
	checkQuad(t, mesh, dir)
}

func TestImportGLTFExternalBuffer(t *testing.T) {
	buf := quadBuffer()
	dir := materialDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quad.bin"), buf, 0o644))

	mesh, err := ImportMesh([]byte(quadDocument("quad.bin", len(buf))), dir)
	require.NoError(t, err)
	checkQuad(t, mesh, dir)
}

func TestImportGLB(t *testing.T) {
	buf := quadBuffer()
	dir := materialDir(t)
	json := []byte(quadDocument("", len(buf)))
	for len(json)%4 != 0 {
		json = append(json, ' ')
	}

	var glb []byte
	glb = binary.LittleEndian.AppendUint32(glb, gltfGLBMagic)
	glb = binary.LittleEndian.AppendUint32(glb, gltfGLBVersion)
	glb = binary.LittleEndian.AppendUint32(glb, uint32(gltfGLBHeaderSize+8+len(json)+8+len(buf)))
	glb = binary.LittleEndian.AppendUint32(glb, uint32(len(json)))
	glb = binary.LittleEndian.AppendUint32(glb, gltfGLBChunkJSON)
	glb = append(glb, json...)
	glb = binary.LittleEndian.AppendUint32(glb, uint32(len(buf)))
	glb = binary.LittleEndian.AppendUint32(glb, gltfGLBChunkBIN)
	glb = append(glb, buf...)

	mesh, err := ImportMesh(glb, dir)
	require.NoError(t, err)
	checkQuad(t, mesh, dir)
}

func TestImportErrors(t *testing.T) {
	buf := quadBuffer()
	uri := "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(buf)
	valid := quadDocument(uri, len(buf))

	cases := map[string]string{
		"not json":     "{",
		"version":      `{"asset": {"version": "1.0"}}`,
		"extension":    `{"asset": {"version": "2.0"}, "extensionsRequired": ["KHR_draco_mesh_compression"]}`,
		"short buffer": quadDocument(uri, len(buf)+1),
		"missing file": quadDocument("nothing.bin", len(buf)),
		"bad mode":     replaceOnce(valid, `"indices": 2, "material": 0}`, `"indices": 2, "material": 0, "mode": 6}`),
		"no position":  replaceOnce(valid, `{"attributes": {"POSITION": 0}, "indices": 2}`, `{"attributes": {}, "indices": 2}`),
		"accessor":     replaceOnce(valid, `"count": 6, "type": "SCALAR"`, `"count": 7, "type": "SCALAR"`),
		"material":     replaceOnce(valid, `"material": 0`, `"material": 9`),
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ImportMesh([]byte(doc), t.TempDir())
			assert.Error(t, err)
		})
	}
}

func TestGenerateNormals(t *testing.T) {
	positions := [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {5, 5, 5}}
	normals := generateNormals(positions, []uint32{0, 1, 2})
	for i := 0; i < 3; i++ {
		assert.InDeltaSlice(t, []float32{0, 0, 1}, normals[i][:], 1e-6)
	}
	assert.Equal(t, [3]float32{}, normals[3])
}

func TestSupports(t *testing.T) {
	l := NewLoader(BackendTypeGLTF)
	assert.True(t, l.Supports("Models/Sponza.GLTF"))
	assert.True(t, l.Supports("a.glb"))
	assert.False(t, l.Supports("a.obj"))
}

func replaceOnce(s, old, new string) string {
	if !strings.Contains(s, old) {
		panic("replaceOnce: " + old + " not found")
	}
	return strings.Replace(s, old, new, 1)
}
