package backend

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuffer(t *testing.T, b Backend, size uint64) Buffer {
	t.Helper()
	buf, err := b.CreateBuffer(gputypes.BufferDescriptor{
		Label: "test",
		Size:  size,
		Usage: gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	require.NoError(t, err)
	return buf
}

func TestRecordingBackendCreateValidation(t *testing.T) {
	b := NewRecordingBackend()

	_, err := b.CreateBuffer(gputypes.BufferDescriptor{Label: "empty"})
	assert.Error(t, err)

	_, err = b.CreateTexture(TextureDescriptor{Label: "flat", Width: 4, Height: 0, Depth: 1})
	assert.Error(t, err)

	_, err = b.CreateShaderModule("nothing", gputypes.ShaderStageVertex, nil)
	assert.Error(t, err)

	pass, err := b.CreateRenderPass(RenderPassDescriptor{
		ColorFormats: []gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm},
	})
	require.NoError(t, err)
	_, err = b.CreateFramebuffer(FramebufferDescriptor{Label: "mismatch", RenderPass: pass})
	assert.Error(t, err)

	_, err = b.CreateRenderPipeline(RenderPipelineDescriptor{Label: "no vertex"})
	assert.Error(t, err)
}

func TestRecordingBackendTracksLiveObjects(t *testing.T) {
	b := NewRecordingBackend()

	buf := newBuffer(t, b, 16)
	s, err := b.CreateSampler(gputypes.SamplerDescriptor{Label: "s"})
	require.NoError(t, err)

	assert.Equal(t, 1, b.Created("buffer"))
	assert.Equal(t, 1, b.Created("sampler"))
	assert.Equal(t, 2, b.Live())

	buf.Release()
	s.Release()
	assert.Equal(t, 0, b.Live())
	assert.Equal(t, 1, b.Created("buffer"))
}

func TestRecordingBackendSubmitExecutesCopies(t *testing.T) {
	b := NewRecordingBackend()
	src := newBuffer(t, b, 8)
	dst := newBuffer(t, b, 8)

	b.WriteBuffer(src, 0, []byte{1, 2, 3, 4, 5, 6, 7, 8})

	enc, err := b.CreateCommandEncoder("copy")
	require.NoError(t, err)
	require.NoError(t, enc.Begin())
	enc.CopyBufferToBuffer(src, 4, dst, 2, 4)
	enc.TransitionBuffer(dst, BufferAccessCopyDst, BufferAccessVertexRead)

	fence, err := b.CreateFence(false)
	require.NoError(t, err)
	assert.Error(t, b.WaitForFence(fence))

	assert.Error(t, b.Submit(SubmitInfo{Encoder: enc}), "open encoder must not be submitted")
	require.NoError(t, enc.End())
	require.NoError(t, b.Submit(SubmitInfo{Encoder: enc, Fence: fence}))

	assert.Equal(t, []byte{0, 0, 5, 6, 7, 8, 0, 0}, b.Contents(dst))
	assert.NoError(t, b.WaitForFence(fence))

	b.ResetFence(fence)
	assert.Error(t, b.WaitForFence(fence))

	subs := b.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, 1, subs[0].Count(OpCopyBufferToBuffer))
	assert.Equal(t, 1, subs[0].Count(OpTransitionBuffer))
	assert.Same(t, fence, subs[0].Fence)
}

func TestRecordingBackendWriteBufferOverrun(t *testing.T) {
	b := NewRecordingBackend()
	buf := newBuffer(t, b, 4)
	assert.Panics(t, func() {
		b.WriteBuffer(buf, 2, []byte{1, 2, 3})
	})
}

func TestRecordingEncoderRequiresBegin(t *testing.T) {
	b := NewRecordingBackend()
	enc, err := b.CreateCommandEncoder("frame")
	require.NoError(t, err)

	assert.Panics(t, func() { enc.Draw(3, 1, 0, 0) })

	require.NoError(t, enc.Begin())
	assert.Error(t, enc.Begin())
	enc.Draw(3, 1, 0, 0)
	require.NoError(t, enc.End())
	assert.Error(t, enc.End())

	// Begin discards the previous frame's commands.
	require.NoError(t, enc.Begin())
	enc.Dispatch(1, 2, 3)
	require.NoError(t, enc.End())
	require.NoError(t, b.Submit(SubmitInfo{Encoder: enc}))

	subs := b.Submissions()
	require.Len(t, subs, 1)
	require.Len(t, subs[0].Commands, 1)
	assert.Equal(t, OpDispatch, subs[0].Commands[0].Op)
	assert.Equal(t, [4]uint32{1, 2, 3, 0}, subs[0].Commands[0].Counts)
}

func TestRecordingBackendSurface(t *testing.T) {
	b := NewRecordingBackend()

	_, err := b.AcquireNextImage(nil)
	assert.Error(t, err)

	_, err = b.ConfigureSurface(0, 10, 2)
	assert.Error(t, err)

	images, err := b.ConfigureSurface(640, 480, 3)
	require.NoError(t, err)
	require.Len(t, images, 3)
	for _, img := range images {
		assert.Equal(t, uint32(640), img.Width())
		assert.Equal(t, uint32(480), img.Height())
		assert.Equal(t, b.SurfaceFormat(), img.Format())
	}

	for _, want := range []uint32{0, 1, 2, 0} {
		idx, err := b.AcquireNextImage(nil)
		require.NoError(t, err)
		assert.Equal(t, want, idx)
		assert.NoError(t, b.Present(idx, nil))
	}
	assert.Error(t, b.Present(7, nil))

	// Reconfiguring releases the previous images.
	_, err = b.ConfigureSurface(320, 240, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Live())

	b.Release()
	assert.Equal(t, 0, b.Live())
}

func TestRecordingBackendKeepsDescriptors(t *testing.T) {
	b := NewRecordingBackend()
	module, err := b.CreateShaderModule("vs", gputypes.ShaderStageVertex, []uint32{0x07230203})
	require.NoError(t, err)
	layout, err := b.CreateBindGroupLayout("layout", []BindGroupLayoutEntry{
		{Binding: 0, Kind: DescriptorKindUniformBuffer, Visibility: gputypes.ShaderStageVertex},
	})
	require.NoError(t, err)
	pl, err := b.CreatePipelineLayout("pl", layout)
	require.NoError(t, err)

	p, err := b.CreateRenderPipeline(RenderPipelineDescriptor{
		Label:        "draw",
		Layout:       pl,
		VertexModule: module,
		Primitive:    gputypes.PrimitiveState{CullMode: gputypes.CullModeBack},
	})
	require.NoError(t, err)
	assert.False(t, p.Compute())
	require.NotNil(t, RenderDescriptor(p))
	assert.Equal(t, gputypes.CullModeBack, RenderDescriptor(p).Primitive.CullMode)

	buf := newBuffer(t, b, 64)
	bg, err := b.CreateBindGroup("bg", layout, []BindGroupEntry{{Binding: 0, Buffer: buf, Size: 64}})
	require.NoError(t, err)
	entries := BindGroupEntries(bg)
	require.Len(t, entries, 1)
	assert.Same(t, buf, entries[0].Buffer)
}
