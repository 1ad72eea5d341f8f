package pipeline

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-gfx/common"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/technique"
	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const quadJSON = `{
  "vertex_shader": {
    "outputs": [{"name": "uv", "type": "vec2"}],
    "main": "output.position = vec4<f32>(input.position, 1.0);\noutput.uv = input.uv;"
  },
  "fragment_shader": {
    "outputs": [{"name": "color", "type": "vec4"}],
    "main": "output.color = textureSample(Albedo, LinearClamp, input.uv) * Constants.tint;"
  },
  "shader_bindings": [
    {"name": "Albedo", "type": "texture2d"},
    {"name": "LinearClamp", "type": "sampler"},
    {"name": "Constants", "type": "cbuffer", "content": "tint: vec4<f32>,"}
  ],
  "vertex_attributes": [
    {"name": "position", "binding": 0, "format": "r32g32b32_sfloat", "offset": 0},
    {"name": "uv", "binding": 0, "format": "r32g32_sfloat", "offset": 12}
  ],
  "color_attachments": ["back_buffer"],
  "depth_attachment": "d32_sfloat",
  "depth_stencil_state": {"depth_test_enable": true, "depth_write_enable": true},
  "blend_attachments": [{
    "blend_enable": true,
    "src_color_blend_factor": "src_alpha",
    "dst_color_blend_factor": "inv_src_alpha",
    "color_write_mask": "rgb"
  }]
}`

// quadNoDepthJSON is quadJSON edited to drop the depth attachment and the Constants binding.
const quadNoDepthJSON = `{
  "vertex_shader": {
    "outputs": [{"name": "uv", "type": "vec2"}],
    "main": "output.position = vec4<f32>(input.position, 1.0);\noutput.uv = input.uv;"
  },
  "fragment_shader": {
    "outputs": [{"name": "color", "type": "vec4"}],
    "main": "output.color = textureSample(Albedo, LinearClamp, input.uv);"
  },
  "shader_bindings": [
    {"name": "Albedo", "type": "texture2d"},
    {"name": "LinearClamp", "type": "sampler"}
  ],
  "vertex_attributes": [
    {"name": "position", "binding": 0, "format": "r32g32b32_sfloat", "offset": 0},
    {"name": "uv", "binding": 0, "format": "r32g32_sfloat", "offset": 12}
  ],
  "color_attachments": ["back_buffer"]
}`

const offscreenJSON = `{
  "vertex_shader": {
    "main": "output.position = vec4<f32>(input.position, 1.0);"
  },
  "fragment_shader": {
    "outputs": [{"name": "albedo", "type": "vec4"}, {"name": "normal", "type": "vec4"}],
    "main": "output.albedo = vec4<f32>(1.0);\noutput.normal = vec4<f32>(0.0, 0.0, 1.0, 0.0);"
  },
  "vertex_attributes": [
    {"name": "position", "binding": 1, "format": "r32g32b32_sfloat", "offset": 0}
  ],
  "color_attachments": ["r8g8b8a8_unorm", "r16g16b16a16_sfloat"]
}`

const blitJSON = `{
  "compute_shader": {
    "work_group_size": {"x": 8, "y": 8},
    "main": "textureStore(Output, vec2<i32>(global_id.xy), textureLoad(Input, vec2<i32>(global_id.xy), 0));"
  },
  "shader_bindings": [
    {"name": "Input", "type": "texture2d"},
    {"name": "Output", "type": "image2d", "format": "rgba8"}
  ]
}`

// instancedJSON reads per-instance offsets from a storage buffer in the vertex stage.
const instancedJSON = `{
  "vertex_shader": {
    "main": "output.position = vec4<f32>(input.position, 1.0) + Instances.offsets[instance_index];"
  },
  "fragment_shader": {
    "outputs": [{"name": "color", "type": "vec4"}],
    "main": "output.color = vec4<f32>(1.0);"
  },
  "shader_bindings": [
    {"name": "Instances", "type": "buffer", "content": "offsets: array<vec4<f32>>,"}
  ],
  "vertex_attributes": [
    {"name": "position", "binding": 0, "format": "r32g32b32_sfloat", "offset": 0}
  ],
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

// stubCompiler stands in for naga so tests do not depend on WGSL validation.
type stubCompiler struct{}

func (stubCompiler) Compile(stage gputypes.ShaderStage, source string) ([]uint32, error) {
	return []uint32{0x07230203, uint32(stage), uint32(len(source))}, nil
}

type fixture struct {
	backend backend.RecordingBackend
	builder Builder
	blobs   technique.Compiler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := technique.NewCompiler(technique.WithShaderCompiler(stubCompiler{}))
	t.Cleanup(c.Release)
	b := backend.NewRecordingBackend()
	return &fixture{backend: b, builder: NewBuilder(b), blobs: c}
}

func (f *fixture) blob(t *testing.T, src string) *technique.Blob {
	t.Helper()
	blob, err := f.blobs.Compile([]byte(src))
	require.NoError(t, err)
	return blob
}

func (f *fixture) build(t *testing.T, src string) *Technique {
	t.Helper()
	tech, err := f.builder.Build("test", f.blob(t, src), f.backend.SurfaceFormat())
	require.NoError(t, err)
	return tech
}

func (f *fixture) texture(t *testing.T, format gputypes.TextureFormat, width, height uint32) *resource.Texture {
	t.Helper()
	tex, err := f.backend.CreateTexture(backend.TextureDescriptor{
		Label:         "attachment",
		Type:          backend.TextureType2D,
		Width:         width,
		Height:        height,
		Depth:         1,
		MipLevelCount: 1,
		Format:        format,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	require.NoError(t, err)
	return resource.WrapTexture(tex)
}

func (f *fixture) quadSetup(t *testing.T, tech *Technique) RenderSetupID {
	t.Helper()
	id, err := f.builder.CreateRenderSetup(tech, RenderSetupParams{
		Colors: []*resource.Texture{f.texture(t, f.backend.SurfaceFormat(), 640, 480)},
		Depth:  f.texture(t, gputypes.TextureFormatDepth32Float, 640, 480),
	})
	require.NoError(t, err)
	return id
}

func TestBuildGraphicsTechnique(t *testing.T) {
	f := newFixture(t)
	tech := f.build(t, quadJSON)

	assert.Equal(t, StateCompiled, tech.State())
	assert.False(t, tech.Compute())
	assert.Equal(t, []gputypes.TextureFormat{gputypes.TextureFormatBGRA8Unorm}, tech.ColorFormats())
	assert.Equal(t, gputypes.TextureFormatDepth32Float, tech.DepthFormat())

	for slot, name := range []string{"Albedo", "LinearClamp", "Constants"} {
		b, ok := tech.Lookup(common.Hash(name))
		require.True(t, ok, name)
		assert.Equal(t, name, b.Name)
		assert.Equal(t, uint32(slot), b.Slot)
	}
	constants, _ := tech.Lookup(common.Hash("Constants"))
	assert.Equal(t, backend.DescriptorKindUniformBuffer, constants.Kind)
	assert.Equal(t, uint64(16), constants.MinSize)
	_, ok := tech.Lookup(common.Hash("Missing"))
	assert.False(t, ok)

	entries := tech.BindGroupLayout().Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, backend.DescriptorKindSampledTexture, entries[0].Kind)
	assert.Equal(t, gputypes.ShaderStagesVertexFragment, entries[0].Visibility)

	desc := backend.RenderDescriptor(tech.Pipeline())
	require.NotNil(t, desc)
	require.Len(t, desc.VertexBuffers, 1)
	assert.Equal(t, uint64(20), desc.VertexBuffers[0].ArrayStride)
	require.Len(t, desc.VertexBuffers[0].Attributes, 2)
	assert.Equal(t, uint64(12), desc.VertexBuffers[0].Attributes[1].Offset)
	assert.Equal(t, uint32(1), desc.VertexBuffers[0].Attributes[1].ShaderLocation)

	require.NotNil(t, desc.DepthStencil)
	assert.True(t, desc.DepthStencil.DepthWriteEnabled)
	assert.Equal(t, gputypes.CompareFunctionLessEqual, desc.DepthStencil.DepthCompare)
	assert.Equal(t, gputypes.CompareFunctionAlways, desc.DepthStencil.StencilFront.Compare)

	require.Len(t, desc.Targets, 1)
	target := desc.Targets[0]
	assert.Equal(t, gputypes.TextureFormatBGRA8Unorm, target.Format)
	assert.Equal(t, gputypes.ColorWriteMaskRed|gputypes.ColorWriteMaskGreen|gputypes.ColorWriteMaskBlue, target.WriteMask)
	require.NotNil(t, target.Blend)
	assert.Equal(t, gputypes.BlendFactorSrcAlpha, target.Blend.Color.SrcFactor)
	assert.Equal(t, gputypes.BlendFactorOneMinusSrcAlpha, target.Blend.Color.DstFactor)
}

func TestBuildSkipsUnusedVertexBufferSlots(t *testing.T) {
	f := newFixture(t)
	tech := f.build(t, offscreenJSON)

	desc := backend.RenderDescriptor(tech.Pipeline())
	require.Len(t, desc.VertexBuffers, 2)
	assert.Empty(t, desc.VertexBuffers[0].Attributes)
	assert.Equal(t, uint64(12), desc.VertexBuffers[1].ArrayStride)
	assert.Nil(t, desc.DepthStencil)
	require.Len(t, desc.Targets, 2)
	assert.Nil(t, desc.Targets[0].Blend)
	assert.Equal(t, gputypes.ColorWriteMaskAll, desc.Targets[1].WriteMask)
}

func TestBuildComputeTechnique(t *testing.T) {
	f := newFixture(t)
	tech := f.build(t, blitJSON)

	assert.True(t, tech.Compute())
	assert.True(t, tech.Pipeline().Compute())
	assert.Equal(t, [3]uint32{8, 8, 1}, tech.WorkgroupSize())
	for _, e := range tech.BindGroupLayout().Entries() {
		assert.Equal(t, gputypes.ShaderStageCompute, e.Visibility)
	}
	assert.Equal(t, 0, f.backend.Created("render_pass"))

	_, err := f.builder.CreateRenderSetup(tech, RenderSetupParams{})
	assert.Error(t, err)
}

func TestBuildWithoutBindingsHasNoBindGroups(t *testing.T) {
	f := newFixture(t)
	tech := f.build(t, offscreenJSON)

	assert.Nil(t, tech.BindGroupLayout())
	assert.Empty(t, backend.PipelineLayoutGroups(tech.gpu.pipelineLayout))
	assert.Equal(t, 0, f.backend.Created("bind_group_layout"))

	quad := f.build(t, quadJSON)
	groups := backend.PipelineLayoutGroups(quad.gpu.pipelineLayout)
	require.Len(t, groups, 1)
	assert.Equal(t, quad.BindGroupLayout(), groups[0])
}

func TestBuildStorageBufferAccess(t *testing.T) {
	f := newFixture(t)

	graphics := f.build(t, instancedJSON)
	entries := graphics.BindGroupLayout().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, backend.DescriptorKindStorageBuffer, entries[0].Kind)
	assert.Equal(t, gputypes.ShaderStagesVertexFragment, entries[0].Visibility)
	assert.True(t, entries[0].ReadOnly)

	compute := f.build(t, countJSON)
	entries = compute.BindGroupLayout().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, gputypes.ShaderStageCompute, entries[0].Visibility)
	assert.False(t, entries[0].ReadOnly)
}

func TestBuildAssignsDistinctIDs(t *testing.T) {
	f := newFixture(t)
	a := f.build(t, quadJSON)
	b := f.build(t, quadJSON)
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestCreateRenderSetup(t *testing.T) {
	f := newFixture(t)
	tech := f.build(t, quadJSON)

	id := f.quadSetup(t, tech)
	assert.False(t, id.IsZero())
	rs := tech.RenderSetup(id)
	assert.Equal(t, uint32(640), rs.Width())
	assert.Equal(t, uint32(480), rs.Height())
	assert.Equal(t, tech.gpu.renderPass, rs.Framebuffer().RenderPass())
	assert.Equal(t, 1, tech.RenderSetupCount())
}

func TestCreateRenderSetupRejectsMismatchedAttachments(t *testing.T) {
	f := newFixture(t)
	tech := f.build(t, quadJSON)
	surface := f.backend.SurfaceFormat()

	tests := []struct {
		name   string
		params RenderSetupParams
	}{
		{"missing color", RenderSetupParams{Depth: f.texture(t, gputypes.TextureFormatDepth32Float, 8, 8)}},
		{"wrong color format", RenderSetupParams{
			Colors: []*resource.Texture{f.texture(t, gputypes.TextureFormatRGBA16Float, 8, 8)},
			Depth:  f.texture(t, gputypes.TextureFormatDepth32Float, 8, 8),
		}},
		{"missing depth", RenderSetupParams{Colors: []*resource.Texture{f.texture(t, surface, 8, 8)}}},
		{"wrong depth format", RenderSetupParams{
			Colors: []*resource.Texture{f.texture(t, surface, 8, 8)},
			Depth:  f.texture(t, gputypes.TextureFormatDepth24PlusStencil8, 8, 8),
		}},
		{"extent mismatch", RenderSetupParams{
			Colors: []*resource.Texture{f.texture(t, surface, 8, 8)},
			Depth:  f.texture(t, gputypes.TextureFormatDepth32Float, 16, 8),
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.builder.CreateRenderSetup(tech, tc.params)
			assert.Error(t, err)
		})
	}
	assert.Equal(t, 0, tech.RenderSetupCount())
}

func TestCreateRenderSetupRejectsDepthExtentMismatch(t *testing.T) {
	f := newFixture(t)
	tech := f.build(t, quadJSON)
	color := f.texture(t, f.backend.SurfaceFormat(), 8, 8)

	_, err := f.builder.CreateRenderSetup(tech, RenderSetupParams{
		Colors: []*resource.Texture{color},
		Depth:  f.texture(t, gputypes.TextureFormatDepth32Float, 16, 8),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "depth attachment is 16x8, expected 8x8")
	assert.Equal(t, 0, tech.RenderSetupCount())

	id, err := f.builder.CreateRenderSetup(tech, RenderSetupParams{
		Colors: []*resource.Texture{color},
		Depth:  f.texture(t, gputypes.TextureFormatDepth32Float, 8, 8),
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(8), tech.RenderSetup(id).Width())
}

func TestDestroyRenderSetupInvalidatesID(t *testing.T) {
	f := newFixture(t)
	tech := f.build(t, quadJSON)

	first := f.quadSetup(t, tech)
	f.builder.DestroyRenderSetup(tech, first)
	assert.Equal(t, 0, tech.RenderSetupCount())
	assert.Panics(t, func() { tech.RenderSetup(first) })
	assert.Panics(t, func() { f.builder.DestroyRenderSetup(tech, first) })

	second := f.quadSetup(t, tech)
	assert.NotEqual(t, first, second)
	assert.NotPanics(t, func() { tech.RenderSetup(second) })
}

func TestRebuildKeepsIdentityAndSetups(t *testing.T) {
	f := newFixture(t)
	tech := f.build(t, quadJSON)
	id := f.quadSetup(t, tech)
	oldPipeline := tech.Pipeline()
	oldFramebuffer := tech.RenderSetup(id).Framebuffer()
	techID := tech.ID()

	edited := f.blob(t, quadJSON+"\n")
	require.NoError(t, f.builder.Rebuild(tech, edited, f.backend.SurfaceFormat()))

	assert.Equal(t, techID, tech.ID())
	assert.Equal(t, edited.Checksum, tech.Checksum())
	assert.NotSame(t, oldPipeline, tech.Pipeline())
	rs := tech.RenderSetup(id)
	assert.NotSame(t, oldFramebuffer, rs.Framebuffer())
	assert.Equal(t, tech.gpu.renderPass, rs.Framebuffer().RenderPass())
	assert.Equal(t, 2, f.backend.Created("pipeline"))
	assert.Equal(t, 2, f.backend.Created("framebuffer"))
}

func TestRebuildRefillsBindingTable(t *testing.T) {
	f := newFixture(t)
	tech := f.build(t, quadNoDepthJSON)
	_, ok := tech.Lookup(common.Hash("Constants"))
	require.False(t, ok)

	require.NoError(t, f.builder.Rebuild(tech, f.blob(t, quadJSON), f.backend.SurfaceFormat()))
	_, ok = tech.Lookup(common.Hash("Constants"))
	assert.True(t, ok)
	assert.Len(t, tech.Bindings(), 3)
}

func TestRebuildFailureKeepsPreviousPipeline(t *testing.T) {
	f := newFixture(t)
	tech := f.build(t, quadJSON)
	id := f.quadSetup(t, tech)
	pipeline := tech.Pipeline()
	checksum := tech.Checksum()
	live := f.backend.Live()

	// The existing setup carries a depth attachment the new render pass has no room for.
	err := f.builder.Rebuild(tech, f.blob(t, quadNoDepthJSON), f.backend.SurfaceFormat())
	require.Error(t, err)

	assert.Same(t, pipeline, tech.Pipeline())
	assert.Equal(t, checksum, tech.Checksum())
	assert.NotPanics(t, func() { tech.RenderSetup(id) })
	assert.Equal(t, live, f.backend.Live())
}

func TestRebuildRejectsKindChange(t *testing.T) {
	f := newFixture(t)
	tech := f.build(t, quadJSON)

	err := f.builder.Rebuild(tech, f.blob(t, blitJSON), f.backend.SurfaceFormat())
	assert.Error(t, err)
	assert.False(t, tech.Compute())
}

func TestDestroyReleasesEverything(t *testing.T) {
	f := newFixture(t)
	before := f.backend.Live()
	tech := f.build(t, quadJSON)
	colors := []*resource.Texture{f.texture(t, f.backend.SurfaceFormat(), 4, 4)}
	depth := f.texture(t, gputypes.TextureFormatDepth32Float, 4, 4)
	_, err := f.builder.CreateRenderSetup(tech, RenderSetupParams{Colors: colors, Depth: depth})
	require.NoError(t, err)

	f.builder.Destroy(tech)

	assert.Equal(t, StateDestroyed, tech.State())
	assert.Equal(t, before+2, f.backend.Live())
	assert.Panics(t, func() { tech.Pipeline() })
	assert.NotPanics(t, func() { f.builder.Destroy(tech) })
}
