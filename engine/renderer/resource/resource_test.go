package resource

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/deferred"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/staging"
	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	backend backend.RecordingBackend
	ring    staging.Allocator
	ringBuf backend.Buffer
	queue   deferred.Queue
	store   Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := backend.NewRecordingBackend()
	ring := staging.NewAllocator(staging.WithCapacity(1 << 16))
	ringBuf, err := b.CreateBuffer(gputypes.BufferDescriptor{
		Label: "staging",
		Size:  ring.Capacity(),
		Usage: gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	require.NoError(t, err)
	q := deferred.NewQueue()
	return &fixture{backend: b, ring: ring, ringBuf: ringBuf, queue: q, store: NewStore(b, ring, ringBuf, q)}
}

// flush writes the ring to its GPU buffer and runs the deferred queue the way a frame does.
func (f *fixture) flush(t *testing.T) backend.RecordedSubmission {
	t.Helper()
	for _, r := range f.ring.TakeDirty() {
		f.backend.WriteBuffer(f.ringBuf, r.Offset, f.ring.Bytes()[r.Offset:r.Offset+r.Size])
	}
	enc, err := f.backend.CreateCommandEncoder("frame")
	require.NoError(t, err)
	require.NoError(t, enc.Begin())
	f.queue.Drain(enc)
	require.NoError(t, enc.End())
	require.NoError(t, f.backend.Submit(backend.SubmitInfo{Encoder: enc}))
	subs := f.backend.Submissions()
	return subs[len(subs)-1]
}

func TestCreateBufferWithData(t *testing.T) {
	f := newFixture(t)
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	buf := f.store.CreateBuffer(BufferParams{Label: "vertices", Size: 16, Usage: gputypes.BufferUsageVertex, Data: data})
	assert.Equal(t, uint64(16), buf.Size())
	assert.NotZero(t, buf.Usage()&gputypes.BufferUsageCopyDst)
	assert.Equal(t, 1, f.queue.Len())

	sub := f.flush(t)
	assert.Equal(t, 1, sub.Count(backend.OpCopyBufferToBuffer))
	assert.Equal(t, data, f.backend.Contents(buf.Backend())[:8])
	assert.Equal(t, backend.BufferAccessVertexRead, sub.Commands[2].BufferTo)
}

func TestCreateBufferWithoutData(t *testing.T) {
	f := newFixture(t)
	buf := f.store.CreateBuffer(BufferParams{Label: "scratch", Size: 64, Usage: gputypes.BufferUsageStorage})
	assert.Zero(t, f.queue.Len())
	assert.Zero(t, buf.Usage()&gputypes.BufferUsageCopyDst)
	assert.Zero(t, f.ring.Head())
}

func TestCreateBufferDataTooLarge(t *testing.T) {
	f := newFixture(t)
	assert.Panics(t, func() {
		f.store.CreateBuffer(BufferParams{Size: 2, Data: []byte{1, 2, 3}})
	})
}

func TestCreateTextureWithoutDataTransitions(t *testing.T) {
	f := newFixture(t)
	tex := f.store.CreateTexture(TextureParams{
		Label:        "target",
		Width:        32,
		Height:       16,
		Format:       gputypes.TextureFormatRGBA8Unorm,
		InitialState: backend.TextureStateColorAttachment,
	})
	assert.Equal(t, uint32(1), tex.Depth())
	assert.Equal(t, uint32(1), tex.MipLevelCount())

	sub := f.flush(t)
	require.Len(t, sub.Commands, 1)
	assert.Equal(t, backend.OpTransitionTexture, sub.Commands[0].Op)
	assert.Equal(t, backend.TextureStateColorAttachment, sub.Commands[0].TextureTo)
}

func TestCreateTexturePadsRows(t *testing.T) {
	f := newFixture(t)
	// 3 texels of RGBA8 per row = 12 bytes, padded to 256.
	data := make([]byte, 3*2*4)
	for i := range data {
		data[i] = byte(i + 1)
	}
	tex := f.store.CreateTexture(TextureParams{
		Label:  "small",
		Width:  3,
		Height: 2,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Data:   data,
	})

	sub := f.flush(t)
	require.Equal(t, 1, sub.Count(backend.OpCopyBufferToTexture))
	copyCmd := sub.Commands[1]
	assert.Equal(t, uint64(256), copyCmd.Size, "bytes per row")
	assert.Same(t, tex.Backend(), copyCmd.DstTex)

	ring := f.backend.Contents(f.ringBuf)
	off := copyCmd.Offset
	assert.Equal(t, data[:12], ring[off:off+12])
	assert.Equal(t, data[12:], ring[off+256:off+268])
	assert.Equal(t, backend.TextureStateShaderRead, sub.Commands[2].TextureTo)
}

func TestCreateTextureGeneratesMipmaps(t *testing.T) {
	f := newFixture(t)
	tex := f.store.CreateTexture(TextureParams{
		Label:           "albedo",
		Width:           16,
		Height:          4,
		Format:          gputypes.TextureFormatRGBA8Unorm,
		Data:            make([]byte, 16*4*4),
		GenerateMipmaps: true,
	})
	assert.Equal(t, uint32(5), tex.MipLevelCount())

	sub := f.flush(t)
	assert.Equal(t, 4, sub.Count(backend.OpBlitTexture))
}

func TestCreateTextureRejectsShortData(t *testing.T) {
	f := newFixture(t)
	assert.Panics(t, func() {
		f.store.CreateTexture(TextureParams{Width: 4, Height: 4, Format: gputypes.TextureFormatRGBA8Unorm, Data: make([]byte, 10)})
	})
	assert.Panics(t, func() {
		f.store.CreateTexture(TextureParams{Width: 4, Height: 4, Format: gputypes.TextureFormatDepth32Float, GenerateMipmaps: true})
	})
}

func TestCreateSamplerDefaults(t *testing.T) {
	f := newFixture(t)
	s := f.store.CreateSampler(SamplerParams{Label: "LinearClamp"})
	assert.Equal(t, "LinearClamp", s.Label())
	assert.Equal(t, 1, f.backend.Created("sampler"))
}

func TestDestroyReleases(t *testing.T) {
	f := newFixture(t)
	live := f.backend.Live()

	buf := f.store.CreateBuffer(BufferParams{Size: 4})
	tex := f.store.CreateTexture(TextureParams{Width: 1, Format: gputypes.TextureFormatR8Unorm})
	smp := f.store.CreateSampler(SamplerParams{})
	assert.Equal(t, live+3, f.backend.Live())

	f.store.DestroyBuffer(buf)
	f.store.DestroyTexture(tex)
	f.store.DestroySampler(smp)
	f.store.DestroySampler(smp)
	assert.Equal(t, live, f.backend.Live())
}

func TestScopedReleasesEverything(t *testing.T) {
	f := newFixture(t)
	live := f.backend.Live()

	func() {
		scope := NewScoped(f.store)
		defer scope.Release()
		scope.Buffer(BufferParams{Size: 4})
		scope.Texture(TextureParams{Width: 2, Height: 2, Format: gputypes.TextureFormatRGBA8Unorm})
		scope.Sampler(SamplerParams{})
		assert.Equal(t, 3, scope.Len())
		assert.Equal(t, live+3, f.backend.Live())
	}()

	assert.Equal(t, live, f.backend.Live())
}
