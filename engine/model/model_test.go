package model

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/deferred"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/frame"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/staging"
	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// drawRecorder captures the calls the model makes. Any other recorder method panics on the nil embedded value.
type drawRecorder struct {
	frame.CommandRecorder
	vertex  []vertexBinding
	index   *resource.Buffer
	stride  uint32
	indexed [][4]int64
}

type vertexBinding struct {
	slot   uint32
	buf    *resource.Buffer
	offset uint64
}

func (r *drawRecorder) BindVertexBuffer(slot uint32, buf *resource.Buffer, offset uint64) {
	r.vertex = append(r.vertex, vertexBinding{slot, buf, offset})
}

func (r *drawRecorder) BindIndexBuffer(buf *resource.Buffer, offset uint64, stride uint32) {
	r.index, r.stride = buf, stride
}

func (r *drawRecorder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32) {
	r.indexed = append(r.indexed, [4]int64{int64(indexCount), int64(instanceCount), int64(firstIndex), int64(vertexOffset)})
}

func newStore(t *testing.T) (backend.RecordingBackend, resource.Store) {
	t.Helper()
	b := backend.NewRecordingBackend()
	ring := staging.NewAllocator(staging.WithCapacity(1 << 16))
	ringBuf, err := b.CreateBuffer(gputypes.BufferDescriptor{
		Label: "staging",
		Size:  ring.Capacity(),
		Usage: gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	require.NoError(t, err)
	return b, resource.NewStore(b, ring, ringBuf, deferred.NewQueue())
}

func whiteTexture(store resource.Store) TextureLoader {
	return func(path string) (*resource.Texture, error) {
		return store.CreateTexture(resource.TextureParams{
			Label:  path,
			Type:   backend.TextureType2D,
			Width:  1,
			Height: 1,
			Format: gputypes.TextureFormatRGBA8Unorm,
			Usage:  gputypes.TextureUsageTextureBinding,
			Data:   []byte{255, 255, 255, 255},
		}), nil
	}
}

func TestNewModel(t *testing.T) {
	b, store := newStore(t)
	blob, err := Build(quadMesh(), 7)
	require.NoError(t, err)

	m, err := NewModel(blob, store, WithName("quad"), WithTextureLoader(whiteTexture(store)))
	require.NoError(t, err)

	assert.Equal(t, "quad", m.Name())
	assert.Equal(t, 2, m.MeshCount())
	assert.Equal(t, uint32(0), m.MaterialIndex(0))
	require.NotNil(t, m.DiffuseTexture(0))
	assert.Equal(t, "textures/brick.png", m.DiffuseTexture(0).Label())
	assert.Nil(t, m.DiffuseTexture(m.MaterialIndex(1)))
	assert.Equal(t, float32(2), m.QuantizationScale())
	lo, hi := m.BoundingBox()
	assert.Equal(t, [3]float32{-2, -1, 0}, lo)
	assert.Equal(t, [3]float32{2, 1, 0.5}, hi)

	assert.Equal(t, uint64(0), m.AttributeOffset(AttributePosition))
	assert.Equal(t, uint64(7*8), m.AttributeOffset(AttributeTexCoord))
	assert.Equal(t, uint64(7*12), m.AttributeOffset(AttributeNormal))
	assert.Equal(t, uint64(7*16), m.VertexBuffer().Size())
	assert.Equal(t, uint64(9*4), m.IndexBuffer().Size())
	assert.Equal(t, 3, b.Created("buffer"))

	m.Destroy(store)
	assert.Nil(t, m.VertexBuffer())
	assert.Equal(t, 1, b.Live())
}

func TestModelDraw(t *testing.T) {
	_, store := newStore(t)
	blob, err := Build(quadMesh(), 0)
	require.NoError(t, err)
	m, err := NewModel(blob, store)
	require.NoError(t, err)

	rec := &drawRecorder{}
	m.BindVertexBuffer(rec, AttributePosition, 0)
	m.BindVertexBuffer(rec, AttributeTexCoord, 1)
	m.BindVertexBuffer(rec, AttributeNormal, 2)
	m.BindIndexBuffer(rec)
	m.Draw(rec, 0, 1)
	m.Draw(rec, 1, 3)

	require.Len(t, rec.vertex, 3)
	assert.Equal(t, vertexBinding{1, m.VertexBuffer(), 56}, rec.vertex[1])
	assert.Equal(t, vertexBinding{2, m.VertexBuffer(), 84}, rec.vertex[2])
	assert.Same(t, m.IndexBuffer(), rec.index)
	assert.Equal(t, uint32(4), rec.stride)
	assert.Equal(t, [][4]int64{{6, 1, 0, 0}, {3, 3, 6, 4}}, rec.indexed)

	assert.Panics(t, func() { m.AttributeOffset(Attribute(5)) })
}

func TestNewModelMissingTexture(t *testing.T) {
	_, store := newStore(t)
	core, logs := observer.New(zap.WarnLevel)
	blob, err := Build(quadMesh(), 0)
	require.NoError(t, err)

	m, err := NewModel(blob, store,
		WithLogger(zap.New(core)),
		WithTextureLoader(func(string) (*resource.Texture, error) { return nil, errors.New("gone") }))
	require.NoError(t, err)
	assert.Nil(t, m.DiffuseTexture(0))
	assert.Equal(t, 1, logs.FilterMessage("failed to load model texture").Len())
}

func TestNewModelRejectsDanglingReferences(t *testing.T) {
	_, store := newStore(t)
	blob, err := Build(quadMesh(), 0)
	require.NoError(t, err)

	blob.DiffuseTextures[0] = 3
	_, err = NewModel(blob, store)
	assert.ErrorContains(t, err, "texture 3")

	blob.DiffuseTextures[0] = 0
	blob.Meshes[1].MaterialIndex = 2
	_, err = NewModel(blob, store)
	assert.ErrorContains(t, err, "material 2")
}
