package technique

import (
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-gfx/common"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/backend"
	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	data := []byte(`{"vertex_shader": {"main": "output.position = vec4<f32>(0.0);"}}`)
	d, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, common.HashBytes(data), d.Checksum)
	assert.False(t, d.IsCompute())
	require.NotNil(t, d.Vertex)
	assert.Nil(t, d.Fragment)

	assert.Equal(t, gputypes.PrimitiveTopologyTriangleList, d.InputAssembly.Topology)
	assert.Equal(t, gputypes.CullModeNone, d.Rasterizer.CullMode)
	assert.Equal(t, gputypes.FrontFaceCCW, d.Rasterizer.FrontFace)
	assert.Equal(t, backend.PolygonModeFill, d.Rasterizer.PolygonMode)
	assert.Equal(t, float32(1), d.Rasterizer.LineWidth)
	assert.False(t, d.DepthStencil.DepthTest)
	assert.False(t, d.DepthStencil.DepthWrite)
	assert.Equal(t, gputypes.CompareFunctionLessEqual, d.DepthStencil.DepthCompare)
	assert.Equal(t, gputypes.StencilOperationKeep, d.DepthStencil.Front.PassOp)
	assert.Equal(t, gputypes.CompareFunctionAlways, d.DepthStencil.Back.Compare)
	assert.Equal(t, gputypes.TextureFormatUndefined, d.DepthFormat)
	assert.Empty(t, d.Blend)
	assert.Equal(t, [3]uint32{}, d.WorkgroupSize)
}

func TestParseTextured(t *testing.T) {
	d, err := Parse([]byte(texturedJSON))
	require.NoError(t, err)

	require.Len(t, d.Bindings, 3)
	assert.Equal(t, common.Hash("Albedo"), d.Bindings[0].Hash)
	assert.Equal(t, backend.DescriptorKindSampledTexture, d.Bindings[0].Kind)
	assert.Equal(t, backend.DescriptorKindSampler, d.Bindings[1].Kind)
	assert.Equal(t, backend.DescriptorKindUniformBuffer, d.Bindings[2].Kind)

	slot, ok := d.Lookup(common.Hash("Constants"))
	require.True(t, ok)
	assert.Equal(t, uint32(2), slot)
	_, ok = d.Lookup(common.Hash("Missing"))
	assert.False(t, ok)

	require.Len(t, d.VertexAttributes, 2)
	assert.Equal(t, gputypes.VertexFormatFloat32x2, d.VertexAttributes[1].Format)
	assert.Equal(t, uint32(12), d.VertexAttributes[1].Offset)
	assert.Equal(t, gputypes.VertexStepModeVertex, d.VertexAttributes[1].StepMode)
	assert.Equal(t, []uint64{20}, d.VertexStrides())

	require.Len(t, d.Vertex.Outputs, 1)
	assert.Equal(t, Output{Name: "uv", Type: "vec2<f32>", Location: 0}, d.Vertex.Outputs[0])

	assert.Equal(t, []ColorAttachment{{BackBuffer: true}}, d.ColorAttachments)
	assert.Equal(t, gputypes.TextureFormatDepth32Float, d.DepthFormat)
	assert.True(t, d.DepthStencil.DepthTest)

	require.Len(t, d.Blend, 1)
	blend := d.Blend[0]
	assert.True(t, blend.Enable)
	assert.Equal(t, gputypes.BlendFactorSrcAlpha, blend.SrcColor)
	assert.Equal(t, gputypes.BlendFactorOneMinusSrcAlpha, blend.DstColor)
	assert.Equal(t, gputypes.BlendOperationAdd, blend.ColorOp)
	assert.Equal(t, gputypes.BlendFactorZero, blend.SrcAlpha)
	assert.Equal(t, gputypes.ColorWriteMaskRed|gputypes.ColorWriteMaskGreen|gputypes.ColorWriteMaskBlue, blend.WriteMask)
}

func TestParseCompute(t *testing.T) {
	d, err := Parse([]byte(computeJSON))
	require.NoError(t, err)

	assert.True(t, d.IsCompute())
	assert.Equal(t, [3]uint32{8, 8, 1}, d.WorkgroupSize)
	require.Len(t, d.Bindings, 2)
	assert.Equal(t, backend.DescriptorKindStorageTexture, d.Bindings[0].Kind)
	assert.Equal(t, gputypes.TextureFormatRGBA16Float, d.Bindings[0].StorageFormat)
}

func TestParseVertexStridesPerBinding(t *testing.T) {
	d, err := Parse([]byte(`{
		"vertex_shader": {},
		"vertex_attributes": [
			{"name": "position", "binding": 0, "format": "r32g32b32_sfloat", "offset": 0},
			{"name": "offset", "binding": 2, "format": "r32g32b32a32_sfloat", "offset": 0, "input_rate": "instance"},
			{"name": "color", "binding": 2, "format": "r8g8b8a8_unorm", "offset": 16, "input_rate": "instance"}
		]
	}`))
	require.NoError(t, err)
	assert.Equal(t, []uint64{12, 0, 20}, d.VertexStrides())
	assert.Equal(t, gputypes.VertexStepModeInstance, d.VertexAttributes[2].StepMode)
}

func TestParseErrors(t *testing.T) {
	many := make([]string, MaxBindings+1)
	for i := range many {
		many[i] = `{"name": "S` + string(rune('a'+i)) + `", "type": "sampler"}`
	}

	tests := []struct {
		name string
		json string
		err  error
		msg  string
	}{
		{"no stage", `{}`, ErrNoStage, ""},
		{"fragment only", `{"fragment_shader": {}}`, ErrNoStage, "without vertex_shader"},
		{"both", `{"vertex_shader": {}, "compute_shader": {}}`, ErrStageConflict, ""},
		{"compute with attachments", `{"compute_shader": {}, "color_attachments": ["back_buffer"]}`, ErrStageConflict, ""},
		{"unknown topology", `{"vertex_shader": {}, "input_assembly": {"topology": "quads"}}`, ErrInvalidValue, "input_assembly.topology"},
		{"triangle fan", `{"vertex_shader": {}, "input_assembly": {"topology": "triangle_fan"}}`, ErrInvalidValue, "not supported"},
		{"unknown binding type", `{"vertex_shader": {}, "shader_bindings": [{"name": "A", "type": "texture4d"}]}`, ErrInvalidValue, "shader_bindings[0].type"},
		{"non-ascii binding name", `{"vertex_shader": {}, "shader_bindings": [{"name": "Albédo", "type": "texture2d"}]}`, ErrInvalidValue, "shader_bindings[0].name"},
		{"duplicate binding", `{"vertex_shader": {}, "shader_bindings": [{"name": "A", "type": "sampler"}, {"name": "A", "type": "sampler"}]}`, ErrHashCollision, ""},
		{"too many bindings", `{"vertex_shader": {}, "shader_bindings": [` + strings.Join(many, ",") + `]}`, ErrInvalidValue, "at most 16"},
		{"cbuffer without content", `{"vertex_shader": {}, "shader_bindings": [{"name": "C", "type": "cbuffer"}]}`, ErrInvalidValue, "content"},
		{"image without format", `{"compute_shader": {}, "shader_bindings": [{"name": "I", "type": "image2d"}]}`, ErrInvalidValue, "need a format"},
		{"image with bad format", `{"compute_shader": {}, "shader_bindings": [{"name": "I", "type": "image2d", "format": "d32_sfloat"}]}`, ErrInvalidValue, "storage images"},
		{"missing offset", `{"vertex_shader": {}, "vertex_attributes": [{"name": "p", "binding": 0, "format": "r32_sfloat"}]}`, ErrInvalidValue, "offset: missing"},
		{"mixed rates", `{"vertex_shader": {}, "vertex_attributes": [
			{"name": "a", "binding": 0, "format": "r32_sfloat", "offset": 0},
			{"name": "b", "binding": 0, "format": "r32_sfloat", "offset": 4, "input_rate": "instance"}]}`, ErrInvalidValue, "mixes"},
		{"depth as color", `{"vertex_shader": {}, "color_attachments": ["d32_sfloat"]}`, ErrInvalidValue, "not a color format"},
		{"color as depth", `{"vertex_shader": {}, "depth_attachment": "r8g8b8a8_unorm"}`, ErrInvalidValue, "not a depth format"},
		{"depth test without attachment", `{"vertex_shader": {}, "depth_stencil_state": {"depth_test_enable": true}}`, ErrInvalidValue, "needs a depth_attachment"},
		{"extra blend", `{"vertex_shader": {}, "blend_attachments": [{}]}`, ErrInvalidValue, "blend_attachments"},
		{"bad write mask", `{"vertex_shader": {}, "color_attachments": ["back_buffer"], "blend_attachments": [{"color_write_mask": "rgbx"}]}`, ErrInvalidValue, "unknown channel"},
		{"position output", `{"vertex_shader": {"outputs": [{"name": "position", "type": "vec4"}]}}`, ErrInvalidValue, "invalid output name"},
		{"zero work group", `{"compute_shader": {"work_group_size": {"x": 0}}}`, ErrInvalidValue, "at least 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.json))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte(`{"vertex_shader": {}, "rasterizer_state": {"cul_mode": "back"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode technique json")
}
