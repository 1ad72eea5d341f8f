package frame

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-gfx/common"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/deferred"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/staging"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/technique"
	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const texturedJSON = `{
  "vertex_shader": {
    "outputs": [{"name": "uv", "type": "vec2"}],
    "main": "output.position = Constants.world * vec4<f32>(input.position, 1.0);\noutput.uv = input.uv;"
  },
  "fragment_shader": {
    "outputs": [{"name": "color", "type": "vec4"}],
    "main": "output.color = textureSample(Albedo, LinearClamp, input.uv) * Constants.tint;"
  },
  "shader_bindings": [
    {"name": "Albedo", "type": "texture2d"},
    {"name": "LinearClamp", "type": "sampler"},
    {"name": "Constants", "type": "cbuffer", "content": "world: mat4x4<f32>,\ntint: vec4<f32>,"}
  ],
  "vertex_attributes": [
    {"name": "position", "binding": 0, "format": "r32g32b32_sfloat", "offset": 0},
    {"name": "uv", "binding": 0, "format": "r32g32_sfloat", "offset": 12}
  ],
  "color_attachments": ["back_buffer"],
  "depth_attachment": "d32_sfloat",
  "depth_stencil_state": {"depth_test_enable": true, "depth_write_enable": true}
}`

const fillJSON = `{
  "compute_shader": {
    "work_group_size": {"x": 8, "y": 8},
    "main": "textureStore(Output, vec2<i32>(global_id.xy), textureLoad(Input, vec2<i32>(global_id.xy), 0));"
  },
  "shader_bindings": [
    {"name": "Input", "type": "texture2d"},
    {"name": "Output", "type": "image2d", "format": "rgba8"}
  ]
}`

const clearJSON = `{
  "vertex_shader": {"main": "output.position = vec4<f32>(0.0, 0.0, 0.0, 1.0);"},
  "fragment_shader": {
    "outputs": [{"name": "color", "type": "vec4"}],
    "main": "output.color = vec4<f32>(1.0);"
  },
  "color_attachments": ["back_buffer"]
}`

const countJSON = `{
  "compute_shader": {
    "work_group_size": {"x": 64},
    "main": "Data.values[global_id.x] = Data.values[global_id.x] + 1u;"
  },
  "shader_bindings": [
    {"name": "Data", "type": "buffer", "content": "values: array<u32>,"}
  ]
}`

var (
	albedoHash      = common.Hash("Albedo")
	linearClampHash = common.Hash("LinearClamp")
	constantsHash   = common.Hash("Constants")
)

type stubCompiler struct{}

func (stubCompiler) Compile(stage gputypes.ShaderStage, source string) ([]uint32, error) {
	return []uint32{0x07230203, uint32(stage)}, nil
}

type fixture struct {
	backend  backend.RecordingBackend
	ring     staging.Allocator
	ringBuf  backend.Buffer
	store    resource.Store
	builder  pipeline.Builder
	ctx      *Context
	recorder Recorder

	color   *resource.Texture
	depth   *resource.Texture
	albedo  *resource.Texture
	sampler *resource.Sampler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := backend.NewRecordingBackend()
	ring := staging.NewAllocator(staging.WithCapacity(1 << 16))
	ringBuf, err := b.CreateBuffer(gputypes.BufferDescriptor{
		Label: "staging",
		Size:  ring.Capacity(),
		Usage: gputypes.BufferUsageCopySrc | gputypes.BufferUsageUniform | gputypes.BufferUsageStorage,
	})
	require.NoError(t, err)
	ctx, err := NewContext(b, 0)
	require.NoError(t, err)

	store := resource.NewStore(b, ring, ringBuf, deferred.NewQueue())
	f := &fixture{
		backend:  b,
		ring:     ring,
		ringBuf:  ringBuf,
		store:    store,
		builder:  pipeline.NewBuilder(b),
		ctx:      ctx,
		recorder: NewRecorder(b, ring, ringBuf),
	}
	f.color = store.CreateTexture(resource.TextureParams{
		Label: "color", Width: 64, Height: 32, Format: b.SurfaceFormat(),
		Usage: gputypes.TextureUsageRenderAttachment, InitialState: backend.TextureStateColorAttachment,
	})
	f.depth = store.CreateTexture(resource.TextureParams{
		Label: "depth", Width: 64, Height: 32, Format: gputypes.TextureFormatDepth32Float,
		Usage: gputypes.TextureUsageRenderAttachment, InitialState: backend.TextureStateDepthAttachment,
	})
	f.albedo = store.CreateTexture(resource.TextureParams{
		Label: "albedo", Width: 4, Height: 4, Format: gputypes.TextureFormatRGBA8Unorm,
		Usage: gputypes.TextureUsageTextureBinding,
	})
	f.sampler = store.CreateSampler(resource.SamplerParams{Label: "linear clamp"})
	return f
}

func (f *fixture) technique(t *testing.T, src string) *pipeline.Technique {
	t.Helper()
	c := technique.NewCompiler(technique.WithShaderCompiler(stubCompiler{}))
	defer c.Release()
	blob, err := c.Compile([]byte(src))
	require.NoError(t, err)
	tech, err := f.builder.Build("test", blob, f.backend.SurfaceFormat())
	require.NoError(t, err)
	return tech
}

func (f *fixture) setup(t *testing.T, tech *pipeline.Technique) pipeline.RenderSetupID {
	t.Helper()
	params := pipeline.RenderSetupParams{Colors: []*resource.Texture{f.color}}
	if tech.DepthFormat() != gputypes.TextureFormatUndefined {
		params.Depth = f.depth
	}
	id, err := f.builder.CreateRenderSetup(tech, params)
	require.NoError(t, err)
	return id
}

func (f *fixture) begin(t *testing.T) {
	t.Helper()
	require.NoError(t, f.ctx.Encoder.Begin())
	f.recorder.Begin(f.ctx)
}

// end finishes the frame and returns what it recorded.
func (f *fixture) end(t *testing.T) backend.RecordedSubmission {
	t.Helper()
	require.NoError(t, f.recorder.End())
	require.NoError(t, f.backend.Submit(backend.SubmitInfo{Encoder: f.ctx.Encoder, Fence: f.ctx.Fence}))
	subs := f.backend.Submissions()
	return subs[len(subs)-1]
}

func (f *fixture) bindTextured(tech *pipeline.Technique) []byte {
	f.recorder.SetTexture(albedoHash, f.albedo, backend.TextureStateShaderRead)
	f.recorder.SetSampler(linearClampHash, f.sampler)
	return f.recorder.AllocUploadBuffer(constantsHash, 80)
}

func TestTexturedQuadAllocatesOneBindGroupPerChange(t *testing.T) {
	f := newFixture(t)
	tech := f.technique(t, texturedJSON)
	id := f.setup(t, tech)

	f.begin(t)
	f.recorder.BeginTechnique(tech)
	f.recorder.SetRenderSetup(id)
	assert.Equal(t, StateTargetBound, f.recorder.State())

	constants := f.bindTextured(tech)
	require.Len(t, constants, 80)
	constants[0] = 0xAB
	f.recorder.Draw(6, 1, 0)
	f.recorder.Draw(6, 1, 0)

	f.recorder.AllocUploadBuffer(constantsHash, 80)
	f.recorder.Draw(6, 1, 0)
	f.recorder.EndTechnique()
	sub := f.end(t)

	assert.Equal(t, 2, sub.Count(backend.OpSetBindGroup))
	assert.Equal(t, 3, sub.Count(backend.OpDraw))
	assert.Equal(t, 2, f.ctx.BindGroupCount())
	assert.Equal(t, Stats{BindGroups: 2, DescriptorWrites: 4, Draws: 3}, f.recorder.Stats())
	assert.Equal(t, StateIdle, f.recorder.State())
}

func TestBindGroupHoldsEveryWrite(t *testing.T) {
	f := newFixture(t)
	tech := f.technique(t, texturedJSON)
	id := f.setup(t, tech)

	f.begin(t)
	f.recorder.BeginTechnique(tech)
	f.recorder.SetRenderSetup(id)
	before := f.ring.Head()
	f.bindTextured(tech)
	f.recorder.Draw(3, 1, 0)
	f.recorder.EndTechnique()
	sub := f.end(t)

	var bg backend.BindGroup
	for _, c := range sub.Commands {
		if c.Op == backend.OpSetBindGroup {
			bg = c.BindGroup
		}
	}
	require.NotNil(t, bg)
	entries := backend.BindGroupEntries(bg)
	require.Len(t, entries, 3)
	assert.Equal(t, f.albedo.Backend(), entries[0].Texture)
	assert.Equal(t, f.sampler.Backend(), entries[1].Sampler)
	assert.Equal(t, f.ringBuf, entries[2].Buffer)
	assert.Equal(t, uint64(80), entries[2].Size)
	assert.GreaterOrEqual(t, entries[2].Offset, before)
	assert.Zero(t, entries[2].Offset%staging.DefaultAlignment)
}

func TestSetRenderSetupSetsFullViewport(t *testing.T) {
	f := newFixture(t)
	tech := f.technique(t, texturedJSON)
	id := f.setup(t, tech)

	f.begin(t)
	f.recorder.BeginTechnique(tech)
	f.recorder.SetRenderSetup(id)
	f.recorder.ClearColor(0, [4]float32{0, 0, 0, 1})
	f.recorder.ClearDepth(1, 0)
	f.recorder.EndTechnique()
	sub := f.end(t)

	ops := make([]backend.Op, 0, len(sub.Commands))
	for _, c := range sub.Commands {
		ops = append(ops, c.Op)
		switch c.Op {
		case backend.OpSetViewport:
			assert.Equal(t, [6]float32{0, 0, 64, 32, 0, 1}, c.Rect)
		case backend.OpSetScissor:
			assert.Equal(t, [4]uint32{0, 0, 64, 32}, c.Counts)
		case backend.OpClearColor:
			assert.Equal(t, gputypes.Color{A: 1}, c.Color)
		}
	}
	assert.Equal(t, []backend.Op{
		backend.OpSetPipeline,
		backend.OpBeginRenderPass,
		backend.OpSetViewport,
		backend.OpSetScissor,
		backend.OpClearColor,
		backend.OpClearDepthStencil,
		backend.OpEndRenderPass,
	}, ops)
}

func TestSwitchingRenderSetupEndsPass(t *testing.T) {
	f := newFixture(t)
	tech := f.technique(t, clearJSON)
	first := f.setup(t, tech)
	second := f.setup(t, tech)

	f.begin(t)
	f.recorder.BeginTechnique(tech)
	f.recorder.SetRenderSetup(first)
	f.recorder.SetRenderSetup(second)
	f.recorder.Draw(3, 1, 0)
	f.recorder.EndTechnique()
	sub := f.end(t)

	assert.Equal(t, 2, sub.Count(backend.OpBeginRenderPass))
	assert.Equal(t, 2, sub.Count(backend.OpEndRenderPass))
	assert.Nil(t, tech.BindGroupLayout())
	assert.Zero(t, sub.Count(backend.OpSetBindGroup))
}

func TestComputeDispatch(t *testing.T) {
	f := newFixture(t)
	tech := f.technique(t, fillJSON)
	target := f.store.CreateTexture(resource.TextureParams{
		Label: "target", Width: 64, Height: 64, Format: gputypes.TextureFormatRGBA8Unorm,
		Usage: gputypes.TextureUsageStorageBinding, InitialState: backend.TextureStateShaderWrite,
	})

	f.begin(t)
	f.recorder.BeginTechnique(tech)
	f.recorder.SetTexture(common.Hash("Input"), f.albedo, backend.TextureStateShaderRead)
	f.recorder.SetTexture(common.Hash("Output"), target, backend.TextureStateShaderWrite)
	f.recorder.Dispatch(8, 8, 1)
	f.recorder.Dispatch(8, 8, 1)
	f.recorder.EndTechnique()
	f.recorder.BlitTexture(f.color, target)
	sub := f.end(t)

	assert.Equal(t, 2, sub.Count(backend.OpDispatch))
	assert.Equal(t, 1, sub.Count(backend.OpSetBindGroup))
	assert.Equal(t, 1, sub.Count(backend.OpBlitTexture))
	assert.Equal(t, 2, f.recorder.Stats().Dispatches)
}

func TestIndexedDrawWithModelBuffers(t *testing.T) {
	f := newFixture(t)
	tech := f.technique(t, clearJSON)
	id := f.setup(t, tech)
	vertices := f.store.CreateBuffer(resource.BufferParams{Label: "vertices", Size: 256, Usage: gputypes.BufferUsageVertex})
	indices := f.store.CreateBuffer(resource.BufferParams{Label: "indices", Size: 64, Usage: gputypes.BufferUsageIndex})

	f.begin(t)
	f.recorder.BeginTechnique(tech)
	f.recorder.SetRenderSetup(id)
	f.recorder.BindVertexBuffer(0, vertices, 0)
	f.recorder.BindIndexBuffer(indices, 8, 2)
	f.recorder.DrawIndexed(12, 1, 0, 4)
	assert.Panics(t, func() { f.recorder.BindIndexBuffer(indices, 0, 3) })
	f.recorder.EndTechnique()
	sub := f.end(t)

	for _, c := range sub.Commands {
		switch c.Op {
		case backend.OpSetIndexBuffer:
			assert.Equal(t, gputypes.IndexFormatUint16, c.IndexFormat)
			assert.Equal(t, uint64(8), c.Offset)
		case backend.OpDrawIndexed:
			assert.Equal(t, int32(4), c.BaseVertex)
		}
	}
}

func TestCopyAndTransitionOutsidePass(t *testing.T) {
	f := newFixture(t)
	src := f.store.CreateBuffer(resource.BufferParams{Label: "src", Size: 64, Usage: gputypes.BufferUsageCopySrc})
	dst := f.store.CreateBuffer(resource.BufferParams{Label: "dst", Size: 64, Usage: gputypes.BufferUsageCopyDst})

	f.begin(t)
	f.recorder.TransitionBuffer(dst, backend.BufferAccessShaderRead, backend.BufferAccessCopyDst)
	f.recorder.CopyBuffer(dst, 16, src, 0, 32)
	f.recorder.TransitionTexture(f.albedo, backend.TextureStateShaderRead, backend.TextureStateCopyDst)
	assert.Panics(t, func() { f.recorder.CopyBuffer(dst, 48, src, 0, 32) })
	sub := f.end(t)

	assert.Equal(t, 1, sub.Count(backend.OpCopyBufferToBuffer))
	assert.Equal(t, int(f.albedo.MipLevelCount()), sub.Count(backend.OpTransitionTexture))
}

func TestRecorderProgrammerErrorsPanic(t *testing.T) {
	f := newFixture(t)
	textured := f.technique(t, texturedJSON)
	compute := f.technique(t, fillJSON)
	counter := f.technique(t, countJSON)
	id := f.setup(t, textured)
	small := f.store.CreateBuffer(resource.BufferParams{Label: "small", Size: 16, Usage: gputypes.BufferUsageUniform})

	tests := []struct {
		name string
		run  func(r Recorder)
	}{
		{"draw without technique", func(r Recorder) { r.Draw(3, 1, 0) }},
		{"draw without render setup", func(r Recorder) {
			r.BeginTechnique(textured)
			r.Draw(3, 1, 0)
		}},
		{"unknown hash", func(r Recorder) {
			r.BeginTechnique(textured)
			r.SetSampler(common.Hash("Missing"), f.sampler)
		}},
		{"kind mismatch", func(r Recorder) {
			r.BeginTechnique(textured)
			r.SetSampler(albedoHash, f.sampler)
		}},
		{"buffer below minimum size", func(r Recorder) {
			r.BeginTechnique(textured)
			r.SetBuffer(constantsHash, small, 0, 0)
		}},
		{"upload below minimum size", func(r Recorder) {
			r.BeginTechnique(textured)
			r.AllocUploadBuffer(constantsHash, 16)
		}},
		{"upload to read-write storage", func(r Recorder) {
			r.BeginTechnique(counter)
			r.AllocUploadBuffer(common.Hash("Data"), 256)
		}},
		{"incomplete bindings", func(r Recorder) {
			r.BeginTechnique(textured)
			r.SetRenderSetup(id)
			r.SetSampler(linearClampHash, f.sampler)
			r.Draw(3, 1, 0)
		}},
		{"draw before any binding", func(r Recorder) {
			r.BeginTechnique(textured)
			r.SetRenderSetup(id)
			r.Draw(3, 1, 0)
		}},
		{"render setup on compute", func(r Recorder) {
			r.BeginTechnique(compute)
			r.SetRenderSetup(id)
		}},
		{"dispatch on graphics", func(r Recorder) {
			r.BeginTechnique(textured)
			r.Dispatch(1, 1, 1)
		}},
		{"storage image in read state", func(r Recorder) {
			r.BeginTechnique(compute)
			r.SetTexture(common.Hash("Output"), f.albedo, backend.TextureStateShaderRead)
		}},
		{"copy inside pass", func(r Recorder) {
			r.BeginTechnique(textured)
			r.SetRenderSetup(id)
			r.CopyBuffer(small, 0, small, 0, 4)
		}},
		{"nested technique", func(r Recorder) {
			r.BeginTechnique(textured)
			r.BeginTechnique(textured)
		}},
		{"end with technique bound", func(r Recorder) {
			r.BeginTechnique(textured)
			_ = r.End()
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx, err := NewContext(f.backend, 1)
			require.NoError(t, err)
			defer ctx.Release()
			require.NoError(t, ctx.Encoder.Begin())
			r := NewRecorder(f.backend, f.ring, f.ringBuf)
			r.Begin(ctx)
			assert.Panics(t, func() { tc.run(r) })
		})
	}
}

func TestRecorderMustBeginBeforeRecording(t *testing.T) {
	f := newFixture(t)
	assert.Panics(t, func() { f.recorder.BeginTechnique(f.technique(t, clearJSON)) })
	assert.Panics(t, func() { _ = f.recorder.End() })
}

func TestResetBindGroupsReleasesPool(t *testing.T) {
	f := newFixture(t)
	tech := f.technique(t, texturedJSON)
	id := f.setup(t, tech)

	f.begin(t)
	f.recorder.BeginTechnique(tech)
	f.recorder.SetRenderSetup(id)
	f.bindTextured(tech)
	f.recorder.Draw(6, 1, 0)
	f.recorder.EndTechnique()
	f.end(t)

	live := f.backend.Live()
	f.ctx.ResetBindGroups()
	assert.Equal(t, 0, f.ctx.BindGroupCount())
	assert.Equal(t, live-1, f.backend.Live())
}
