// Package model turns decoded meshes into GPU models: a quantized vertex buffer holding one stream per attribute,
// a 32-bit index buffer, per submesh draw ranges and the diffuse texture of each material.
package model

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-gfx/common"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/frame"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/resource"
	"github.com/gogpu/gputypes"
	"go.uber.org/zap"
)

// TextureLoader loads a material texture by path.
type TextureLoader func(path string) (*resource.Texture, error)

// model is the implementation of the Model interface.
type model struct {
	name          string
	logger        *zap.Logger
	textureLoader TextureLoader

	meshes            []meshRange
	diffuse           []int32
	textures          []*resource.Texture
	boundsMin         [3]float32
	boundsMax         [3]float32
	quantizationScale float32

	vertexBuffer *resource.Buffer
	indexBuffer  *resource.Buffer
	offsets      [attributeCount]uint64
}

type meshRange struct {
	materialIndex uint32
	vertexOffset  uint32
	indexOffset   uint32
	indexCount    uint32
}

// Model defines the interface for a loaded 3D model.
// A Model owns a vertex buffer with a position, texture coordinate and normal stream, an index buffer, the
// submesh draw ranges and the textures its materials reference.
type Model interface {
	// Name retrieves the model identifier.
	//
	// Returns:
	//   - string: the model name
	Name() string

	// MeshCount returns the number of submeshes.
	MeshCount() int

	// MaterialIndex returns the material of a submesh, or common.NoMaterial.
	//
	// Parameters:
	//   - mesh: the submesh index
	//
	// Returns:
	//   - uint32: the material index
	MaterialIndex(mesh int) uint32

	// DiffuseTexture returns the diffuse texture of a material. Materials without one, including those whose file
	// was missing when the model was built, return nil.
	//
	// Parameters:
	//   - material: the material index
	//
	// Returns:
	//   - *resource.Texture: the texture or nil
	DiffuseTexture(material uint32) *resource.Texture

	// BoundingBox returns the model space bounds.
	//
	// Returns:
	//   - [3]float32: the minimum corner
	//   - [3]float32: the maximum corner
	BoundingBox() ([3]float32, [3]float32)

	// QuantizationScale returns the factor that restores model space positions, see AttributePosition.
	QuantizationScale() float32

	// VertexBuffer returns the buffer holding every vertex stream.
	VertexBuffer() *resource.Buffer

	// IndexBuffer returns the 32-bit index buffer.
	IndexBuffer() *resource.Buffer

	// AttributeOffset returns where an attribute stream starts in the vertex buffer.
	AttributeOffset(attr Attribute) uint64

	// BindVertexBuffer binds one attribute stream to a vertex buffer slot of the bound technique.
	//
	// Parameters:
	//   - rec: the frame's command recorder
	//   - attr: the attribute stream
	//   - binding: the technique's vertex buffer binding the attribute is declared on
	BindVertexBuffer(rec frame.CommandRecorder, attr Attribute, binding uint32)

	// BindIndexBuffer binds the index buffer.
	BindIndexBuffer(rec frame.CommandRecorder)

	// Draw records an indexed draw of one submesh.
	//
	// Parameters:
	//   - rec: the frame's command recorder
	//   - mesh: the submesh index
	//   - instanceCount: the number of instances
	Draw(rec frame.CommandRecorder, mesh int, instanceCount uint32)

	// Destroy releases the model's buffers and textures. No frame in flight may still use them.
	//
	// Parameters:
	//   - store: the store the model was created with
	Destroy(store resource.Store)
}

var _ Model = &model{}

// NewModel uploads a blob. Buffers are created through the store, so their contents reach the GPU at the next
// frame. Material textures are loaded with the option's TextureLoader; a texture that fails to load is logged and
// treated as absent.
//
// Parameters:
//   - blob: the decoded model blob
//   - store: the store buffers are created on
//   - opts: optional configuration such as WithName and WithTextureLoader
//
// Returns:
//   - Model: the model
//   - error: an error if the blob references a texture or material that does not exist
func NewModel(blob *Blob, store resource.Store, opts ...ModelBuilderOption) (Model, error) {
	m := &model{
		boundsMin:         blob.BoundsMin,
		boundsMax:         blob.BoundsMax,
		quantizationScale: blob.QuantizationScale,
		diffuse:           append([]int32(nil), blob.DiffuseTextures...),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = zap.L()
	}

	for i, t := range m.diffuse {
		if t >= int32(len(blob.TexturePaths)) {
			return nil, fmt.Errorf("material %d references texture %d of %d", i, t, len(blob.TexturePaths))
		}
	}
	m.meshes = make([]meshRange, len(blob.Meshes))
	for i, sm := range blob.Meshes {
		if sm.MaterialIndex != common.NoMaterial && sm.MaterialIndex >= uint32(len(m.diffuse)) {
			return nil, fmt.Errorf("mesh %d references material %d of %d", i, sm.MaterialIndex, len(m.diffuse))
		}
		m.meshes[i] = meshRange{
			materialIndex: sm.MaterialIndex,
			vertexOffset:  sm.VertexOffset,
			indexOffset:   sm.IndexOffset,
			indexCount:    sm.IndexCount,
		}
	}

	m.textures = make([]*resource.Texture, len(blob.TexturePaths))
	if m.textureLoader != nil {
		for i, path := range blob.TexturePaths {
			tex, err := m.textureLoader(path)
			if err != nil {
				m.logger.Warn("failed to load model texture", zap.String("model", m.name), zap.String("path", path), zap.Error(err))
				continue
			}
			m.textures[i] = tex
		}
	}

	vertices := uint64(blob.VertexCount())
	var size uint64
	for a := AttributePosition; a < attributeCount; a++ {
		m.offsets[a] = size
		size += vertices * a.stride()
	}
	if size > 0 {
		m.vertexBuffer = store.CreateBuffer(resource.BufferParams{
			Label: m.name + " vertices",
			Size:  size,
			Usage: gputypes.BufferUsageVertex,
			Data:  VertexData(blob),
		})
	}
	if len(blob.Indices) > 0 {
		data := make([]byte, 0, len(blob.Indices)*4)
		for _, idx := range blob.Indices {
			data = append(data, byte(idx), byte(idx>>8), byte(idx>>16), byte(idx>>24))
		}
		m.indexBuffer = store.CreateBuffer(resource.BufferParams{
			Label: m.name + " indices",
			Size:  uint64(len(data)),
			Usage: gputypes.BufferUsageIndex,
			Data:  data,
		})
	}
	return m, nil
}

func (m *model) Name() string { return m.name }

func (m *model) MeshCount() int { return len(m.meshes) }

func (m *model) MaterialIndex(mesh int) uint32 { return m.meshes[mesh].materialIndex }

func (m *model) DiffuseTexture(material uint32) *resource.Texture {
	if material >= uint32(len(m.diffuse)) {
		return nil
	}
	t := m.diffuse[material]
	if t < 0 {
		return nil
	}
	return m.textures[t]
}

func (m *model) BoundingBox() ([3]float32, [3]float32) { return m.boundsMin, m.boundsMax }

func (m *model) QuantizationScale() float32 { return m.quantizationScale }

func (m *model) VertexBuffer() *resource.Buffer { return m.vertexBuffer }

func (m *model) IndexBuffer() *resource.Buffer { return m.indexBuffer }

func (m *model) AttributeOffset(attr Attribute) uint64 {
	if attr < 0 || attr >= attributeCount {
		panic(fmt.Sprintf("model: unknown attribute %d", attr))
	}
	return m.offsets[attr]
}

func (m *model) BindVertexBuffer(rec frame.CommandRecorder, attr Attribute, binding uint32) {
	rec.BindVertexBuffer(binding, m.vertexBuffer, m.AttributeOffset(attr))
}

func (m *model) BindIndexBuffer(rec frame.CommandRecorder) {
	rec.BindIndexBuffer(m.indexBuffer, 0, 4)
}

func (m *model) Draw(rec frame.CommandRecorder, mesh int, instanceCount uint32) {
	r := m.meshes[mesh]
	rec.DrawIndexed(r.indexCount, instanceCount, r.indexOffset, int32(r.vertexOffset))
}

func (m *model) Destroy(store resource.Store) {
	for i, tex := range m.textures {
		if tex != nil {
			store.DestroyTexture(tex)
			m.textures[i] = nil
		}
	}
	store.DestroyBuffer(m.vertexBuffer)
	store.DestroyBuffer(m.indexBuffer)
	m.vertexBuffer, m.indexBuffer = nil, nil
}
