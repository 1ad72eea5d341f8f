package shader

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/backend"
	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reflectGraphicsSource = `
struct Light {
    position: vec3<f32>,
    intensity: f32,
}

struct Constants_t {
    world: mat4x4<f32>,
    tint: vec3<f32>,
    lights: array<Light, 2>,
}

/* @group(0) @binding(9) var ignored: sampler; */
@group(0) @binding(2) var<uniform> Constants: Constants_t;
@group(0) @binding(0) var Albedo: texture_2d<f32>;
@group(0) @binding(1) var LinearClamp: sampler;
// @group(0) @binding(7) var commented: sampler;
@group(0) @binding(3) var<storage, read> Instances: array<vec4<f32>>;

struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
}

@vertex
fn vs(@builtin(vertex_index) vertex_index: u32) -> VertexOutput {
    var output: VertexOutput;
    return output;
}

@fragment fn fs(input: VertexOutput) -> @location(0) vec4<f32> {
    return textureSample(Albedo, LinearClamp, input.uv);
}
`

func TestReflectGraphics(t *testing.T) {
	r := Reflect(reflectGraphicsSource)

	require.Len(t, r.Bindings, 4)
	assert.Equal(t, []string{"Albedo", "LinearClamp", "Constants", "Instances"},
		[]string{r.Bindings[0].Name, r.Bindings[1].Name, r.Bindings[2].Name, r.Bindings[3].Name})

	albedo := r.Bindings[0]
	assert.Equal(t, backend.DescriptorKindSampledTexture, albedo.Kind)
	assert.Equal(t, backend.TextureType2D, albedo.TextureType)

	assert.Equal(t, backend.DescriptorKindSampler, r.Bindings[1].Kind)

	constants, ok := r.Binding(2)
	require.True(t, ok)
	assert.Equal(t, backend.DescriptorKindUniformBuffer, constants.Kind)
	// world 64 + tint 12 at 64, lights (2 x 16) at 80
	assert.Equal(t, uint64(112), constants.MinSize)

	instances := r.Bindings[3]
	assert.Equal(t, backend.DescriptorKindStorageBuffer, instances.Kind)
	assert.Equal(t, uint64(16), instances.MinSize)

	_, ok = r.Binding(9)
	assert.False(t, ok)

	assert.Equal(t, map[gputypes.ShaderStage]string{
		gputypes.ShaderStageVertex:   "vs",
		gputypes.ShaderStageFragment: "fs",
	}, r.EntryPoints)
	assert.Equal(t, [3]uint32{1, 1, 1}, r.WorkgroupSize)
}

func TestReflectCompute(t *testing.T) {
	src := `
@group(0) @binding(0) var Output: texture_storage_2d<rgba16float, write>;
@group(0) @binding(1) var<storage, read_write> Counters: array<atomic<u32>, 4>;

@compute @workgroup_size(8, 4)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {}
`
	r := Reflect(src)
	require.Len(t, r.Bindings, 2)

	out := r.Bindings[0]
	assert.Equal(t, backend.DescriptorKindStorageTexture, out.Kind)
	assert.Equal(t, backend.TextureType2D, out.TextureType)
	assert.Equal(t, gputypes.TextureFormatRGBA16Float, out.StorageFormat)

	assert.Equal(t, uint64(16), r.Bindings[1].MinSize)
	assert.Equal(t, "main", r.EntryPoints[gputypes.ShaderStageCompute])
	assert.Equal(t, [3]uint32{8, 4, 1}, r.WorkgroupSize)
}

func TestStripCommentsKeepsLines(t *testing.T) {
	src := "a // x\n/* b\n /* nested */ c */ d\ne"
	assert.Equal(t, "a \n\n d\ne", stripComments(src))
}

func TestComputeStructSizesOutOfOrder(t *testing.T) {
	structs := parseStructBlocks(`
struct Outer { inner: Inner, count: u32, }
struct Inner { a: vec2<f32>, b: f32, }
`)
	sizes := computeStructSizes(structs)
	assert.Equal(t, typeLayout{16, 8}, sizes["Inner"])
	assert.Equal(t, typeLayout{24, 8}, sizes["Outer"])
}
