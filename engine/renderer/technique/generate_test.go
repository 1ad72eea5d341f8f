package technique

import (
	"testing"
	"testing/fstest"

	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateGraphics(t *testing.T) {
	d, err := Parse([]byte(texturedJSON))
	require.NoError(t, err)

	src, err := Generate(d, shader.NewPreProcessor())
	require.NoError(t, err)
	assert.Empty(t, src.Compute)

	for _, stage := range []string{src.Vertex, src.Fragment} {
		assert.Contains(t, stage, "@group(0) @binding(0) var Albedo: texture_2d<f32>;")
		assert.Contains(t, stage, "@group(0) @binding(1) var LinearClamp: sampler;")
		assert.Contains(t, stage, "@group(0) @binding(2) var<uniform> Constants: Constants_t;")
		assert.Contains(t, stage, "struct Constants_t {\n    world: mat4x4<f32>,\n    tint: vec4<f32>,\n}")
	}

	assert.Contains(t, src.Vertex, "@location(0) position: vec3<f32>,")
	assert.Contains(t, src.Vertex, "@location(1) uv: vec2<f32>,")
	assert.Contains(t, src.Vertex, "struct VertexOutput {\n    @builtin(position) position: vec4<f32>,\n    @location(0) uv: vec2<f32>,\n}")
	assert.Contains(t, src.Vertex, "fn main(input: VertexInput, @builtin(vertex_index) vertex_index: u32")
	assert.Contains(t, src.Vertex, "    output.uv = input.uv;\n    return output;\n}")

	assert.Contains(t, src.Fragment, "struct FragmentInput {")
	assert.Contains(t, src.Fragment, "@location(0) color: vec4<f32>,")
	assert.Contains(t, src.Fragment, "fn main(input: FragmentInput) -> FragmentOutput {")

	// world 64 + tint 16
	assert.Equal(t, uint64(80), d.Bindings[2].MinSize)
	assert.Zero(t, d.Bindings[0].MinSize)
}

func TestGenerateCompute(t *testing.T) {
	d, err := Parse([]byte(computeJSON))
	require.NoError(t, err)

	src, err := Generate(d, shader.NewPreProcessor())
	require.NoError(t, err)
	assert.Empty(t, src.Vertex)
	assert.Contains(t, src.Compute, "@group(0) @binding(0) var Output: texture_storage_2d<rgba16float, write>;")
	assert.Contains(t, src.Compute, "@compute @workgroup_size(8, 8, 1)")
	assert.Contains(t, src.Compute, "@builtin(global_invocation_id) global_id: vec3<u32>")
	assert.Equal(t, uint64(4), d.Bindings[1].MinSize)
}

func TestGenerateOmitsStorageImagesFromVertexStage(t *testing.T) {
	d, err := Parse([]byte(`{
		"vertex_shader": {},
		"fragment_shader": {},
		"shader_bindings": [{"name": "Picking", "type": "image2d", "format": "r32ui"}]
	}`))
	require.NoError(t, err)

	src, err := Generate(d, shader.NewPreProcessor())
	require.NoError(t, err)
	assert.NotContains(t, src.Vertex, "Picking")
	assert.Contains(t, src.Fragment, "var Picking: texture_storage_2d<r32uint, write>;")
	assert.Contains(t, src.Fragment, "fn main(input: FragmentInput) {")
}

func TestGenerateFlatIntegerVaryings(t *testing.T) {
	d, err := Parse([]byte(`{"vertex_shader": {"outputs": [{"name": "id", "type": "uint"}]}}`))
	require.NoError(t, err)

	src, err := Generate(d, shader.NewPreProcessor())
	require.NoError(t, err)
	assert.Contains(t, src.Vertex, "@location(0) @interpolate(flat) id: u32,")
	assert.Contains(t, src.Vertex, "fn main(@builtin(vertex_index)")
}

func TestGenerateExpandsIncludes(t *testing.T) {
	fsys := fstest.MapFS{"common.wgsl": {Data: []byte("fn half(x: f32) -> f32 { return x * 0.5; }")}}
	d, err := Parse([]byte(`{"vertex_shader": {"include": "//@oxy:include common.wgsl\n//@oxy:include fullscreen"}}`))
	require.NoError(t, err)

	src, err := Generate(d, shader.NewPreProcessor(shader.WithIncludeFS(fsys)))
	require.NoError(t, err)
	assert.Contains(t, src.Vertex, "fn half(")
	assert.Contains(t, src.Vertex, "fn fullscreen_position")
	assert.Equal(t, []string{"common.wgsl"}, src.Includes)
}

func TestGenerateRejectsBindingsFromIncludes(t *testing.T) {
	d, err := Parse([]byte(`{"vertex_shader": {"include": "@group(0) @binding(3) var Extra: sampler;"}}`))
	require.NoError(t, err)

	_, err = Generate(d, shader.NewPreProcessor())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Contains(t, err.Error(), "outside shader_bindings")
}
